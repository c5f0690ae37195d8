package domain

import (
	"github.com/allisson/keyvault/internal/errors"
)

var (
	ErrSecretNotFound = errors.Wrap(errors.ErrNotFound, "secret not found")

	ErrInvalidPath = errors.Wrap(errors.ErrInvalidInput, "invalid secret path")

	ErrEmptyValue = errors.Wrap(errors.ErrInvalidInput, "secret value cannot be empty")
)
