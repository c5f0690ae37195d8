package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
	gonanoid "github.com/matoous/go-nanoid/v2"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	"github.com/allisson/keyvault/internal/database"
	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	drDomain "github.com/allisson/keyvault/internal/dr/domain"
	drService "github.com/allisson/keyvault/internal/dr/service"
	apperrors "github.com/allisson/keyvault/internal/errors"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	"github.com/allisson/keyvault/internal/settings"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

const (
	ActionBackupCreated  = "vault.backup.created"
	ActionBackupRestored = "vault.backup.restored"

	minPassphraseLength  = 12
	backupIDAlphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
	backupIDSuffixLength = 6
	resourceBackup       = "VaultBackup"
)

type drUseCase struct {
	txManager database.TxManager
	secrets   SecretRepository
	policies  PolicyRepository
	configs   EncryptionConfigRepository
	settings  settings.Repository
	store     *settings.Store
	unseal    UnsealStatus
	audit     auditUsecase.Recorder
	events    auditService.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewDRUseCase creates the disaster recovery use case.
func NewDRUseCase(
	txManager database.TxManager,
	secrets SecretRepository,
	policies PolicyRepository,
	configs EncryptionConfigRepository,
	settingsRepo settings.Repository,
	unseal UnsealStatus,
	audit auditUsecase.Recorder,
	events auditService.EventPublisher,
	logger *slog.Logger,
) DRUseCase {
	return &drUseCase{
		txManager: txManager,
		secrets:   secrets,
		policies:  policies,
		configs:   configs,
		settings:  settingsRepo,
		store:     settings.NewStore(settingsRepo),
		unseal:    unseal,
		audit:     audit,
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func validatePassphrase(passphrase string) error {
	err := validation.Validate(passphrase,
		validation.Required,
		customValidation.PasswordStrength{MinLength: minPassphraseLength},
	)
	if err != nil {
		return apperrors.Wrap(drDomain.ErrWeakPassphrase, err.Error())
	}
	return nil
}

func (u *drUseCase) snapshot(ctx context.Context, backupID, actor string) (*drDomain.Snapshot, error) {
	snap := &drDomain.Snapshot{BackupID: backupID, CreatedAt: u.now(), CreatedBy: actor}

	secrets, err := u.secrets.ListAllSecrets(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secrets")
	}
	for _, s := range secrets {
		snap.Secrets = append(snap.Secrets, drDomain.SecretSnapshot{
			Path:          s.Path,
			Version:       s.Version,
			EncryptedData: s.Ciphertext,
			IV:            s.IV,
			Metadata:      s.Metadata,
			CreatedBy:     s.CreatedBy,
			CreatedAt:     s.CreatedAt,
			DeletedAt:     s.DeletedAt,
		})
	}

	policies, err := u.policies.ListPolicies(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list policies")
	}
	for _, p := range policies {
		caps := make([]string, 0, len(p.Capabilities))
		for _, c := range p.Capabilities {
			caps = append(caps, string(c))
		}
		snap.Policies = append(snap.Policies, drDomain.PolicySnapshot{
			Name:         p.Name,
			PathPattern:  p.PathPattern,
			Capabilities: caps,
			Description:  p.Description,
			CreatedAt:    p.CreatedAt,
		})
	}

	all, err := u.settings.ListSettings(ctx, "")
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list settings")
	}
	for _, s := range all {
		snap.Settings = append(snap.Settings, drDomain.SettingSnapshot{Key: s.Key, Value: s.Value})
	}

	configs, err := u.configs.ListEncryptionConfigs(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list encryption configs")
	}
	for _, c := range configs {
		snap.EncryptionConfigs = append(snap.EncryptionConfigs, drDomain.EncryptionConfigSnapshot{
			TableName:       c.TableName,
			DekPurpose:      c.DekPurpose,
			EncryptedFields: c.EncryptedFields,
			Enabled:         c.Enabled,
		})
	}
	return snap, nil
}

func (u *drUseCase) Backup(ctx context.Context, passphrase, actor string) (*drDomain.BackupResult, []byte, error) {
	if err := validatePassphrase(passphrase); err != nil {
		return nil, nil, err
	}

	suffix, err := gonanoid.Generate(backupIDAlphabet, backupIDSuffixLength)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to generate backup id")
	}
	backupID := fmt.Sprintf("vault-backup-%s-%s", u.now().Format("20060102-150405"), suffix)

	snap, err := u.snapshot(ctx, backupID, actor)
	if err != nil {
		return nil, nil, err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to encode snapshot")
	}
	hash := cryptoService.SHA256Hex(payload)
	envelope, err := json.Marshal(drDomain.Envelope{
		FormatVersion: drDomain.FormatVersion,
		IntegrityHash: hash,
		Snapshot:      payload,
	})
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to encode envelope")
	}

	blob, err := drService.SealBlob(envelope, passphrase)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to encrypt backup")
	}

	if err := u.store.Save(ctx, drDomain.LastBackupSettingKey, drDomain.LastBackupSchema, &drDomain.LastBackup{At: snap.CreatedAt, BackupID: backupID}); err != nil {
		return nil, nil, err
	}

	reason := fmt.Sprintf("Exported %d secrets, %d policies", len(snap.Secrets), len(snap.Policies))
	u.events.Publish(ctx, auditDomain.SecurityEvent{
		ID:           uuid.NewString(),
		EventType:    auditDomain.EventBackupCreated,
		Severity:     auditDomain.SeverityInfo,
		Source:       "VaultDR",
		Action:       ActionBackupCreated,
		UserID:       actor,
		ResourceType: resourceBackup,
		ResourceID:   backupID,
		Outcome:      auditDomain.OutcomeSuccess,
		Reason:       reason,
		Timestamp:    snap.CreatedAt,
	})
	if err := u.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionBackupCreated,
		ResourceType: resourceBackup,
		ResourceID:   backupID,
		ActorID:      actor,
		Details:      map[string]any{"integrityHash": hash, "sizeBytes": len(blob)},
	}); err != nil {
		return nil, nil, err
	}

	u.logger.Info("vault backup created",
		slog.String("backup_id", backupID),
		slog.Int("secrets", len(snap.Secrets)),
		slog.Int("size_bytes", len(blob)),
	)
	return &drDomain.BackupResult{
		BackupID:          backupID,
		CreatedAt:         snap.CreatedAt,
		IntegrityHash:     hash,
		SizeBytes:         len(blob),
		Secrets:           len(snap.Secrets),
		Policies:          len(snap.Policies),
		Settings:          len(snap.Settings),
		EncryptionConfigs: len(snap.EncryptionConfigs),
	}, blob, nil
}

// open decrypts the blob and checks the integrity hash.
func open(blob []byte, passphrase string) (*drDomain.Snapshot, string, error) {
	plaintext, err := drService.OpenBlob(blob, passphrase)
	if err != nil {
		return nil, "", err
	}
	var envelope drDomain.Envelope
	if err := json.Unmarshal(plaintext, &envelope); err != nil {
		return nil, "", apperrors.Wrap(drDomain.ErrInvalidBackup, "backup data is not valid json")
	}
	hash := cryptoService.SHA256Hex(envelope.Snapshot)
	if hash != envelope.IntegrityHash {
		return nil, hash, drDomain.ErrIntegrityMismatch
	}
	var snap drDomain.Snapshot
	if err := json.Unmarshal(envelope.Snapshot, &snap); err != nil {
		return nil, hash, apperrors.Wrap(drDomain.ErrInvalidBackup, "snapshot is not valid json")
	}
	return &snap, hash, nil
}

func (u *drUseCase) Validate(_ context.Context, blob []byte, passphrase string) (*drDomain.ValidationResult, error) {
	snap, hash, err := open(blob, passphrase)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidInput) {
			return &drDomain.ValidationResult{IntegrityHash: hash, Error: err.Error()}, nil
		}
		return nil, err
	}
	return &drDomain.ValidationResult{
		Valid:         true,
		BackupID:      snap.BackupID,
		CreatedAt:     snap.CreatedAt,
		IntegrityHash: hash,
	}, nil
}

func (u *drUseCase) Restore(ctx context.Context, blob []byte, passphrase, actor string) (*drDomain.RestoreResult, error) {
	snap, _, err := open(blob, passphrase)
	if err != nil {
		return nil, err
	}

	result := &drDomain.RestoreResult{BackupID: snap.BackupID}
	err = u.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := u.restoreSecrets(ctx, snap, result); err != nil {
			return err
		}
		if err := u.restorePolicies(ctx, snap, result); err != nil {
			return err
		}
		if err := u.restoreSettings(ctx, snap, result); err != nil {
			return err
		}
		if err := u.restoreConfigs(ctx, snap, result); err != nil {
			return err
		}
		return u.audit.Record(ctx, auditDomain.Entry{
			Action:       ActionBackupRestored,
			ResourceType: resourceBackup,
			ResourceID:   snap.BackupID,
			ActorID:      actor,
			Details: map[string]any{
				"secretsRestored":  result.SecretsRestored,
				"policiesRestored": result.PoliciesRestored,
				"settingsRestored": result.SettingsRestored,
				"configsRestored":  result.EncryptionConfigsRestored,
				"skipped":          result.Skipped,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("vault backup restored",
		slog.String("backup_id", snap.BackupID),
		slog.Int("secrets_restored", result.SecretsRestored),
		slog.Int("skipped", result.Skipped),
	)
	return result, nil
}

// restoreSecrets adds every version of a path only when the path is absent.
func (u *drUseCase) restoreSecrets(ctx context.Context, snap *drDomain.Snapshot, result *drDomain.RestoreResult) error {
	present := make(map[string]bool)
	for _, s := range snap.Secrets {
		exists, seen := present[s.Path]
		if !seen {
			versions, err := u.secrets.ListSecretVersions(ctx, s.Path)
			if err != nil {
				return err
			}
			exists = len(versions) > 0
			present[s.Path] = exists
		}
		if exists {
			result.Skipped++
			continue
		}

		err := u.secrets.CreateSecret(ctx, &secretsDomain.Secret{
			ID:         uuid.Must(uuid.NewV7()),
			Path:       s.Path,
			Version:    s.Version,
			Ciphertext: s.EncryptedData,
			IV:         s.IV,
			Metadata:   s.Metadata,
			CreatedBy:  s.CreatedBy,
			CreatedAt:  s.CreatedAt,
			UpdatedAt:  u.now(),
			DeletedAt:  s.DeletedAt,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("secret %s v%d: %v", s.Path, s.Version, err))
			continue
		}
		result.SecretsRestored++
	}
	return nil
}

func (u *drUseCase) restorePolicies(ctx context.Context, snap *drDomain.Snapshot, result *drDomain.RestoreResult) error {
	for _, p := range snap.Policies {
		_, err := u.policies.GetPolicyByName(ctx, p.Name)
		if err == nil {
			result.Skipped++
			continue
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		caps := make([]policyDomain.Capability, 0, len(p.Capabilities))
		for _, c := range p.Capabilities {
			caps = append(caps, policyDomain.Capability(c))
		}
		now := u.now()
		if err := u.policies.CreatePolicy(ctx, &policyDomain.Policy{
			ID:           uuid.Must(uuid.NewV7()),
			Name:         p.Name,
			PathPattern:  p.PathPattern,
			Capabilities: caps,
			Description:  p.Description,
			CreatedAt:    p.CreatedAt,
			UpdatedAt:    now,
		}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("policy %s: %v", p.Name, err))
			continue
		}
		result.PoliciesRestored++
	}
	return nil
}

func (u *drUseCase) restoreSettings(ctx context.Context, snap *drDomain.Snapshot, result *drDomain.RestoreResult) error {
	for _, s := range snap.Settings {
		_, err := u.settings.GetSetting(ctx, s.Key)
		if err == nil {
			result.Skipped++
			continue
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if err := u.settings.SaveSetting(ctx, &settings.Setting{Key: s.Key, Value: s.Value, UpdatedAt: u.now()}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("setting %s: %v", s.Key, err))
			continue
		}
		result.SettingsRestored++
	}
	return nil
}

func (u *drUseCase) restoreConfigs(ctx context.Context, snap *drDomain.Snapshot, result *drDomain.RestoreResult) error {
	for _, c := range snap.EncryptionConfigs {
		_, err := u.configs.GetEncryptionConfig(ctx, c.TableName)
		if err == nil {
			result.Skipped++
			continue
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		now := u.now()
		if err := u.configs.SaveEncryptionConfig(ctx, &dekDomain.EncryptionConfig{
			ID:              uuid.Must(uuid.NewV7()),
			TableName:       c.TableName,
			DekPurpose:      c.DekPurpose,
			EncryptedFields: c.EncryptedFields,
			Enabled:         c.Enabled,
			CreatedAt:       now,
			UpdatedAt:       now,
		}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("encryption config %s: %v", c.TableName, err))
			continue
		}
		result.EncryptionConfigsRestored++
	}
	return nil
}

// Readiness grades five checks: auto-unseal, encryption configs, secrets, policies and a backup.
func (u *drUseCase) Readiness(ctx context.Context) (*drDomain.ReadinessReport, error) {
	status, err := u.unseal.Status(ctx)
	if err != nil {
		return nil, err
	}
	configs, err := u.configs.ListEncryptionConfigs(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := u.secrets.SecretStats(ctx)
	if err != nil {
		return nil, err
	}
	policies, err := u.policies.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}

	var last drDomain.LastBackup
	hasBackup := true
	if err := u.store.Load(ctx, drDomain.LastBackupSettingKey, drDomain.LastBackupSchema, &last); err != nil {
		if !apperrors.Is(err, settings.ErrSettingNotFound) {
			return nil, err
		}
		hasBackup = false
	}

	checks := []drDomain.ReadinessCheck{
		{Name: "auto_unseal", Passed: status.Configured, Detail: fmt.Sprintf("%d providers", len(status.Providers))},
		{Name: "encryption_configs", Passed: len(configs) > 0, Detail: fmt.Sprintf("%d configs", len(configs))},
		{Name: "secrets", Passed: stats.Paths > 0, Detail: fmt.Sprintf("%d secrets", stats.Paths)},
		{Name: "policies", Passed: len(policies) > 0, Detail: fmt.Sprintf("%d policies", len(policies))},
		{Name: "backup", Passed: hasBackup, Detail: "no backup taken"},
	}
	if hasBackup {
		checks[4].Detail = "last backup " + last.At.Format(time.RFC3339)
	}

	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	return &drDomain.ReadinessReport{
		Score:       passed * 100 / len(checks),
		Grade:       drDomain.GradeReadiness(passed, len(checks)),
		Checks:      checks,
		GeneratedAt: u.now(),
	}, nil
}
