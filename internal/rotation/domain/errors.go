package domain

import (
	"github.com/allisson/keyvault/internal/errors"
)

var (
	ErrScheduleNotFound = errors.Wrap(errors.ErrNotFound, "rotation schedule not found")

	ErrDbRotationNotConfigured = errors.Wrap(errors.ErrPreconditionFailed, "db credential rotation not configured")

	ErrNoEncryptionConfig = errors.Wrap(errors.ErrNotFound, "no encryption config for table")
)
