// Package usecase implements disaster recovery: encrypted snapshots, additive restore,
// blob validation and the readiness report.
package usecase

import (
	"context"

	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	drDomain "github.com/allisson/keyvault/internal/dr/domain"
	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
)

type SecretRepository interface {
	ListAllSecrets(ctx context.Context) ([]*secretsDomain.Secret, error)
	ListSecretVersions(ctx context.Context, path string) ([]*secretsDomain.Secret, error)
	CreateSecret(ctx context.Context, secret *secretsDomain.Secret) error
	SecretStats(ctx context.Context) (secretsDomain.Stats, error)
}

type PolicyRepository interface {
	ListPolicies(ctx context.Context) ([]*policyDomain.Policy, error)
	GetPolicyByName(ctx context.Context, name string) (*policyDomain.Policy, error)
	CreatePolicy(ctx context.Context, policy *policyDomain.Policy) error
}

type EncryptionConfigRepository interface {
	ListEncryptionConfigs(ctx context.Context) ([]*dekDomain.EncryptionConfig, error)
	GetEncryptionConfig(ctx context.Context, tableName string) (*dekDomain.EncryptionConfig, error)
	SaveEncryptionConfig(ctx context.Context, cfg *dekDomain.EncryptionConfig) error
}

// UnsealStatus reports whether auto-unseal is configured.
type UnsealStatus interface {
	Status(ctx context.Context) (*kmsDomain.UnsealStatus, error)
}

// DRUseCase backs up and restores the vault.
type DRUseCase interface {
	// Backup returns the encrypted blob alongside its description.
	Backup(ctx context.Context, passphrase, actor string) (*drDomain.BackupResult, []byte, error)
	// Restore only adds what is missing. Existing paths, names and keys are skipped.
	Restore(ctx context.Context, blob []byte, passphrase, actor string) (*drDomain.RestoreResult, error)
	Validate(ctx context.Context, blob []byte, passphrase string) (*drDomain.ValidationResult, error)
	Readiness(ctx context.Context) (*drDomain.ReadinessReport, error)
}
