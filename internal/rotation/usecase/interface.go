// Package usecase implements secret rotation schedules, DEK rotation with re-encryption
// sweeps, and dual-slot database credential rotation.
package usecase

import (
	"context"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	credentialDomain "github.com/allisson/keyvault/internal/credential/domain"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
)

// ScheduleRepository persists rotation schedules, one per secret path.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule *rotationDomain.Schedule) error
	UpdateSchedule(ctx context.Context, schedule *rotationDomain.Schedule) error
	GetScheduleByPath(ctx context.Context, path string) (*rotationDomain.Schedule, error)
	ListSchedules(ctx context.Context, activeOnly bool) ([]*rotationDomain.Schedule, error)
}

// SecretStore reads and writes secret versions.
type SecretStore interface {
	Get(ctx context.Context, path string, version int) (*secretsDomain.SecretValue, error)
	Put(ctx context.Context, path string, value []byte, opts secretsDomain.PutOptions) (int, error)
}

// AuditTrail appends audit entries and reads them back for rotation history.
type AuditTrail interface {
	Record(ctx context.Context, entry auditDomain.Entry) error
	List(ctx context.Context, filter auditDomain.Filter) ([]*auditDomain.AuditLog, error)
}

// CredentialIssuer mints and revokes the credentials held by the rotation slots.
type CredentialIssuer interface {
	Generate(ctx context.Context, req credentialDomain.Request) (*credentialDomain.Result, error)
	Revoke(ctx context.Context, id uuid.UUID, actor string) error
}

// FieldCipher encrypts the stored admin password and connection string.
type FieldCipher interface {
	EncryptField(ctx context.Context, purpose, plaintext string) (string, error)
	DecryptField(ctx context.Context, purpose, framed string) (string, error)
}

// SecretRotationUseCase manages schedules and rotates secrets.
type SecretRotationUseCase interface {
	SetSchedule(ctx context.Context, path string, cfg rotationDomain.Config, actor string) (*rotationDomain.Schedule, error)
	RemoveSchedule(ctx context.Context, path string, actor string) error
	Schedules(ctx context.Context) ([]*rotationDomain.Schedule, error)
	History(ctx context.Context, path string, limit int) ([]rotationDomain.HistoryEntry, error)
	RotateNow(ctx context.Context, path string, actor string) rotationDomain.Result
	// ExecutePending rotates every due schedule. A failure never aborts the batch.
	ExecutePending(ctx context.Context) rotationDomain.BatchResult
}

// DekRotationUseCase rotates DEKs and migrates encrypted fields to the current version.
type DekRotationUseCase interface {
	Rotate(ctx context.Context, purpose string, actor string) rotationDomain.DekRotationResult
	ReEncryptTable(ctx context.Context, table, purpose string, batchSize int) (*rotationDomain.ReEncryptionResult, error)
	ReEncryptAll(ctx context.Context, purpose string) ([]*rotationDomain.ReEncryptionResult, error)
	Progress(ctx context.Context, purpose string) ([]*rotationDomain.ReEncryptionProgress, error)
}

// DbCredentialRotationUseCase rotates the application's own database login across two slots.
type DbCredentialRotationUseCase interface {
	Configure(ctx context.Context, admin rotationDomain.AdminConfig, actor string) error
	Rotate(ctx context.Context, actor string) rotationDomain.DbRotationResult
	Status(ctx context.Context) (*rotationDomain.DbRotationStatus, error)
	ActiveConnectionString(ctx context.Context) (string, error)
}
