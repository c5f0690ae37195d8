// Package errors provides the standard error sentinels shared by every vault module.
// Modules build their own domain errors by wrapping one of these sentinels so that
// transport layers can map them to status codes without knowing module internals.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (duplicate name, version race).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request lacks valid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the principal is not allowed to perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrPreconditionFailed indicates an invariant violation such as renewing a
	// non-renewable lease or revoking an already revoked credential. No state is mutated.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrUnavailable indicates a required collaborator (remote KMS, target database) is unreachable.
	ErrUnavailable = errors.New("unavailable")
)

// New creates a new error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
