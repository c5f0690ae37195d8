package domain

import (
	"github.com/allisson/keyvault/internal/errors"
)

var (
	ErrCredentialNotFound = errors.Wrap(errors.ErrNotFound, "dynamic credential not found")

	ErrCredentialRevoked = errors.Wrap(errors.ErrPreconditionFailed, "dynamic credential already revoked")

	ErrInvalidIdentifier = errors.Wrap(errors.ErrInvalidInput, "invalid sql identifier")

	ErrTargetUnavailable = errors.Wrap(errors.ErrUnavailable, "target database unavailable")
)
