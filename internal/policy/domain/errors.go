package domain

import (
	"github.com/allisson/keyvault/internal/errors"
)

var (
	ErrPolicyNotFound = errors.Wrap(errors.ErrNotFound, "policy not found")

	ErrPolicyExists = errors.Wrap(errors.ErrConflict, "policy already exists")

	ErrInvalidPattern = errors.Wrap(errors.ErrInvalidInput, "invalid path pattern")

	ErrInvalidCapability = errors.Wrap(errors.ErrInvalidInput, "invalid capability")

	ErrTokenNotFound = errors.Wrap(errors.ErrNotFound, "token not found")

	// ErrPolicyDenied is returned when an evaluation denies access.
	ErrPolicyDenied = errors.Wrap(errors.ErrForbidden, "policy denied")
)
