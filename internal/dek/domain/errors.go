package domain

import (
	"github.com/allisson/keyvault/internal/errors"
)

var (
	ErrDekNotFound = errors.Wrap(errors.ErrNotFound, "dek not found")

	ErrEncryptionConfigNotFound = errors.Wrap(errors.ErrNotFound, "encryption config not found")

	ErrInvalidPurpose = errors.Wrap(errors.ErrInvalidInput, "invalid dek purpose")

	ErrInvalidIdentifier = errors.Wrap(errors.ErrInvalidInput, "invalid sql identifier")
)
