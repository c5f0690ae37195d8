// Package usecase scores the vault against compliance frameworks using live state.
package usecase

import (
	"context"
	"time"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	complianceDomain "github.com/allisson/keyvault/internal/compliance/domain"
	credentialDomain "github.com/allisson/keyvault/internal/credential/domain"
	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
	leaseDomain "github.com/allisson/keyvault/internal/lease/domain"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

// StateReader is the read-only view of vault state the controls are scored from.
type StateReader interface {
	ListEncryptionConfigs(ctx context.Context) ([]*dekDomain.EncryptionConfig, error)
	CountAuditLogs(ctx context.Context, filter auditDomain.Filter) (int, error)
	CountSecurityEvents(ctx context.Context, filter auditDomain.EventFilter) (int, error)
	SecretStats(ctx context.Context) (secretsDomain.Stats, error)
	ListPolicies(ctx context.Context) ([]*policyDomain.Policy, error)
	CountUserPolicies(ctx context.Context) (int, error)
	ListTokens(ctx context.Context) ([]*policyDomain.Token, error)
	ListSchedules(ctx context.Context, activeOnly bool) ([]*rotationDomain.Schedule, error)
	ListActiveLeases(ctx context.Context, now time.Time) ([]*leaseDomain.Lease, error)
	ListCredentials(ctx context.Context, includeRevoked bool) ([]*credentialDomain.Credential, error)
	ListZTPolicies(ctx context.Context) ([]*ztDomain.Policy, error)
}

// KmsHealth reports the configured KMS provider and its reachability.
type KmsHealth interface {
	Name() string
	IsHealthy(ctx context.Context) bool
}

// UnsealStatus reports whether auto-unseal is configured.
type UnsealStatus interface {
	Status(ctx context.Context) (*kmsDomain.UnsealStatus, error)
}

// ComplianceUseCase scores frameworks.
type ComplianceUseCase interface {
	Facts(ctx context.Context) (*complianceDomain.Facts, error)
	EvaluateFramework(ctx context.Context, framework string) (*complianceDomain.Report, error)
	// Evaluate scores every framework and grades the combined percentage.
	Evaluate(ctx context.Context) (*complianceDomain.Summary, error)
}
