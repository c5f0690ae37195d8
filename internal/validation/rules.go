// Package validation provides custom validation rules shared by vault modules.
package validation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/keyvault/internal/errors"
)

var (
	// identifierRegex is the allow-list for identifiers spliced into SQL statements.
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

	// pathSegmentRegex is the allow-list for one secret path segment.
	pathSegmentRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// PasswordStrength validates a passphrase meets minimum security requirements
type PasswordStrength struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireNumber  bool
	RequireSpecial bool
}

// Validate checks if the passphrase meets the configured requirements
func (p PasswordStrength) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_password_strength", "passphrase must be a string")
	}

	if len(s) < p.MinLength {
		return validation.NewError(
			"validation_password_min_length",
			"passphrase must be at least "+strconv.Itoa(p.MinLength)+" characters",
		)
	}

	if p.RequireUpper && !containsRune(s, unicode.IsUpper) {
		return validation.NewError(
			"validation_password_uppercase",
			"passphrase must contain at least one uppercase letter",
		)
	}

	if p.RequireLower && !containsRune(s, unicode.IsLower) {
		return validation.NewError(
			"validation_password_lowercase",
			"passphrase must contain at least one lowercase letter",
		)
	}

	if p.RequireNumber && !containsRune(s, unicode.IsNumber) {
		return validation.NewError("validation_password_number", "passphrase must contain at least one number")
	}

	if p.RequireSpecial && !containsRune(s, isSpecial) {
		return validation.NewError(
			"validation_password_special",
			"passphrase must contain at least one special character",
		)
	}

	return nil
}

func isSpecial(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func containsRune(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if pred(r) {
			return true
		}
	}
	return false
}

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// SQLIdentifier allows only alphanumerics, underscore and dot.
var SQLIdentifier = validation.NewStringRuleWithError(
	IsSQLIdentifier,
	validation.NewError("validation_sql_identifier", "may only contain letters, digits, '_' and '.'"),
)

// IsSQLIdentifier reports whether s passes the SQL identifier allow-list.
func IsSQLIdentifier(s string) bool {
	return identifierRegex.MatchString(s)
}

// SecretPath validates a normalized secret path: non-empty segments of letters, digits,
// '_', '.', '-' and no "." or ".." segments.
var SecretPath = validation.NewStringRuleWithError(
	func(s string) bool {
		if s == "" {
			return false
		}
		for _, seg := range strings.Split(s, "/") {
			if seg == "." || seg == ".." || !pathSegmentRegex.MatchString(seg) {
				return false
			}
		}
		return true
	},
	validation.NewError("validation_secret_path", "must be a '/'-separated path of letters, digits, '_', '.' or '-'"),
)
