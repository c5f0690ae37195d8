package domain

import (
	"github.com/allisson/keyvault/internal/errors"
)

var (
	// ErrInvalidBackup covers a wrong passphrase, a truncated blob and tampering alike.
	ErrInvalidBackup = errors.Wrap(errors.ErrInvalidInput, "invalid backup key or corrupted backup data")

	ErrIntegrityMismatch = errors.Wrap(errors.ErrInvalidInput, "backup integrity hash mismatch")

	ErrWeakPassphrase = errors.Wrap(errors.ErrInvalidInput, "backup passphrase too weak")
)
