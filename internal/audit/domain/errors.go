package domain

import (
	"github.com/allisson/keyvault/internal/errors"
)

var (
	// ErrSignatureInvalid indicates an audit entry whose HMAC does not match its content.
	ErrSignatureInvalid = errors.Wrap(errors.ErrInvalidInput, "audit log signature invalid")

	// ErrSignatureMissing indicates an entry stored without a signature.
	ErrSignatureMissing = errors.Wrap(errors.ErrInvalidInput, "audit log signature missing")
)
