package domain

import (
	"github.com/allisson/keyvault/internal/errors"
)

var (
	ErrPolicyNotFound = errors.Wrap(errors.ErrNotFound, "zero-trust policy not found")

	ErrSessionNotFound = errors.Wrap(errors.ErrNotFound, "session not found")

	ErrDeviceNotFound = errors.Wrap(errors.ErrNotFound, "device not found")

	ErrAccessDenied = errors.Wrap(errors.ErrForbidden, "zero-trust access denied")

	ErrInvalidBreakGlassCode = errors.Wrap(errors.ErrForbidden, "invalid break-glass code")
)
