package domain

import (
	"github.com/allisson/keyvault/internal/errors"
)

var (
	ErrLeaseNotFound = errors.Wrap(errors.ErrNotFound, "lease not found")

	ErrLeaseNotRenewable = errors.Wrap(errors.ErrPreconditionFailed, "lease is not renewable")

	ErrLeaseRevoked = errors.Wrap(errors.ErrPreconditionFailed, "lease already revoked")

	ErrLeaseExpired = errors.Wrap(errors.ErrPreconditionFailed, "lease expired")

	ErrInvalidTTL = errors.Wrap(errors.ErrInvalidInput, "invalid lease ttl")
)
