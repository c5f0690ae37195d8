// Package service holds the stateless and in-memory zero-trust building blocks: threat
// detection, device fingerprinting and break-glass codes.
package service

import (
	"context"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
)

// EventLister reads stored security events. It feeds login history and behavioral baselines.
type EventLister interface {
	ListSecurityEvents(ctx context.Context, filter auditDomain.EventFilter) ([]*auditDomain.SecurityEvent, error)
}
