package domain

import (
	"github.com/allisson/keyvault/internal/errors"
)

var (
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "kms key not found")

	ErrKeyExists = errors.Wrap(errors.ErrConflict, "kms key already exists")

	ErrKeyDisabled = errors.Wrap(errors.ErrPreconditionFailed, "kms key disabled")

	ErrUnsupportedKeyType = errors.Wrap(errors.ErrInvalidInput, "unsupported key type")

	// ErrProviderUnavailable indicates the remote key custody service could not be reached.
	ErrProviderUnavailable = errors.Wrap(errors.ErrUnavailable, "kms provider unavailable")

	ErrNoUnsealProvider = errors.Wrap(errors.ErrPreconditionFailed, "no unseal provider configured")

	ErrUnsealFailed = errors.Wrap(errors.ErrUnavailable, "all unseal providers failed")
)
