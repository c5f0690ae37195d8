// Package usecase implements the signed audit trail.
package usecase

import (
	"context"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
)

// AuditLogRepository persists audit entries.
type AuditLogRepository interface {
	CreateAuditLog(ctx context.Context, log *auditDomain.AuditLog) error
	ListAuditLogs(ctx context.Context, filter auditDomain.Filter) ([]*auditDomain.AuditLog, error)
	CountAuditLogs(ctx context.Context, filter auditDomain.Filter) (int, error)
}

// KeySource supplies the key audit signatures are derived from.
type KeySource interface {
	Key(ctx context.Context) ([]byte, error)
}

// Recorder is the narrow port other modules use to append audit entries.
type Recorder interface {
	Record(ctx context.Context, entry auditDomain.Entry) error
}

// AuditLogUseCase records, lists and verifies audit entries.
type AuditLogUseCase interface {
	Recorder
	List(ctx context.Context, filter auditDomain.Filter) ([]*auditDomain.AuditLog, error)
	Count(ctx context.Context, filter auditDomain.Filter) (int, error)
	Verify(ctx context.Context, filter auditDomain.Filter) (*auditDomain.VerificationReport, error)
}
