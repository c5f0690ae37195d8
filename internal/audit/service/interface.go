// Package service contains the audit signer and the security event publisher.
package service

import (
	"context"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
)

// AuditSigner produces and checks tamper-evidence signatures for audit entries.
type AuditSigner interface {
	Sign(key []byte, log *auditDomain.AuditLog) ([]byte, error)
	Verify(key []byte, log *auditDomain.AuditLog) error
}

// EventPublisher delivers security events. Publishing never fails the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event auditDomain.SecurityEvent)
}

// EventStore persists security events for later baseline analysis.
type EventStore interface {
	CreateSecurityEvent(ctx context.Context, event *auditDomain.SecurityEvent) error
}
