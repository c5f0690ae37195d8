package usecase

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	"github.com/allisson/keyvault/internal/database"
	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	drDomain "github.com/allisson/keyvault/internal/dr/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/storage/memory"
)

const passphrase = "correct horse battery staple"

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event auditDomain.SecurityEvent) {
	m.Called(ctx, event)
}

type stubUnseal struct {
	configured bool
}

func (s stubUnseal) Status(context.Context) (*kmsDomain.UnsealStatus, error) {
	status := &kmsDomain.UnsealStatus{Configured: s.configured}
	if s.configured {
		status.Providers = []kmsDomain.UnsealProvider{{Provider: kmsDomain.ProviderLocal}}
	}
	return status, nil
}

func newDR(store *memory.Store, unseal UnsealStatus, events auditService.EventPublisher) DRUseCase {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := auditUsecase.NewAuditLogUseCase(store, auditService.NewAuditSigner(), nil, logger)
	return NewDRUseCase(database.NewNoopTxManager(), store, store, store, store, unseal, audit, events, logger)
}

func addSecret(t *testing.T, store *memory.Store, path string, version int, data string) {
	t.Helper()
	require.NoError(t, store.CreateSecret(context.Background(), &secretsDomain.Secret{
		ID:         uuid.Must(uuid.NewV7()),
		Path:       path,
		Version:    version,
		Ciphertext: []byte(data),
		IV:         []byte("iv-" + data),
		CreatedAt:  time.Now().UTC(),
	}))
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	addSecret(t, store, "app/db", 1, "one")
	addSecret(t, store, "app/db", 2, "two")
	addSecret(t, store, "app/api", 1, "api")
	require.NoError(t, store.CreatePolicy(ctx, &policyDomain.Policy{
		ID:           uuid.Must(uuid.NewV7()),
		Name:         "app-read",
		PathPattern:  "app/*",
		Capabilities: []policyDomain.Capability{policyDomain.CapabilityRead},
	}))
	require.NoError(t, store.SaveSetting(ctx, &settings.Setting{Key: "custom", Value: []byte(`{"a":1}`)}))
	require.NoError(t, store.SaveEncryptionConfig(ctx, &dekDomain.EncryptionConfig{
		TableName: "patients", DekPurpose: "data", EncryptedFields: []string{"ssn"}, Enabled: true,
	}))
	return store
}

func TestDRUseCase_Backup(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		store := seededStore(t)
		events := &mockPublisher{}
		events.On("Publish", mock.Anything, mock.MatchedBy(func(e auditDomain.SecurityEvent) bool {
			return e.EventType == auditDomain.EventBackupCreated
		})).Once()
		uc := newDR(store, stubUnseal{}, events)

		result, blob, err := uc.Backup(ctx, passphrase, "admin")
		require.NoError(t, err)
		assert.Regexp(t, `^vault-backup-\d{8}-\d{6}-[0-9a-z]{6}$`, result.BackupID)
		assert.Equal(t, 3, result.Secrets)
		assert.Equal(t, 1, result.Policies)
		assert.Equal(t, 1, result.Settings)
		assert.Equal(t, 1, result.EncryptionConfigs)
		assert.Len(t, blob, result.SizeBytes)
		assert.Len(t, result.IntegrityHash, 64)
		events.AssertExpectations(t)

		validation, err := uc.Validate(ctx, blob, passphrase)
		require.NoError(t, err)
		assert.True(t, validation.Valid)
		assert.Equal(t, result.BackupID, validation.BackupID)
		assert.Equal(t, result.IntegrityHash, validation.IntegrityHash)
	})

	t.Run("Error_WeakPassphrase", func(t *testing.T) {
		uc := newDR(memory.NewStore(), stubUnseal{}, auditService.NoopPublisher{})

		_, _, err := uc.Backup(ctx, "short", "admin")
		assert.ErrorIs(t, err, drDomain.ErrWeakPassphrase)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestDRUseCase_Validate(t *testing.T) {
	ctx := context.Background()
	uc := newDR(seededStore(t), stubUnseal{}, auditService.NoopPublisher{})
	_, blob, err := uc.Backup(ctx, passphrase, "admin")
	require.NoError(t, err)

	t.Run("Success_WrongPassphraseIsInvalid", func(t *testing.T) {
		v, err := uc.Validate(ctx, blob, "another long passphrase")
		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.NotEmpty(t, v.Error)
	})

	t.Run("Success_CorruptedIsInvalid", func(t *testing.T) {
		corrupted := append([]byte(nil), blob...)
		corrupted[len(corrupted)/2] ^= 0xff

		v, err := uc.Validate(ctx, corrupted, passphrase)
		require.NoError(t, err)
		assert.False(t, v.Valid)
	})
}

func TestDRUseCase_Restore(t *testing.T) {
	ctx := context.Background()
	_, blob, err := newDR(seededStore(t), stubUnseal{}, auditService.NoopPublisher{}).Backup(ctx, passphrase, "admin")
	require.NoError(t, err)

	t.Run("Success_AdditiveIntoEmptyVault", func(t *testing.T) {
		target := memory.NewStore()
		addSecret(t, target, "app/api", 1, "local-api")
		uc := newDR(target, stubUnseal{}, auditService.NoopPublisher{})

		result, err := uc.Restore(ctx, blob, passphrase, "admin")
		require.NoError(t, err)
		assert.Equal(t, 2, result.SecretsRestored)
		assert.Equal(t, 1, result.PoliciesRestored)
		assert.Equal(t, 1, result.SettingsRestored)
		assert.Equal(t, 1, result.EncryptionConfigsRestored)
		assert.Equal(t, 1, result.Skipped)
		assert.Empty(t, result.Errors)

		existing, err := target.GetSecret(ctx, "app/api")
		require.NoError(t, err)
		assert.Equal(t, []byte("local-api"), existing.Ciphertext)

		restored, err := target.GetSecret(ctx, "app/db")
		require.NoError(t, err)
		assert.Equal(t, 2, restored.Version)
		assert.Equal(t, []byte("two"), restored.Ciphertext)

		logs, err := target.ListAuditLogs(ctx, auditDomain.Filter{Action: ActionBackupRestored})
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("Success_SecondRestoreSkipsEverything", func(t *testing.T) {
		target := memory.NewStore()
		uc := newDR(target, stubUnseal{}, auditService.NoopPublisher{})
		_, err := uc.Restore(ctx, blob, passphrase, "admin")
		require.NoError(t, err)

		result, err := uc.Restore(ctx, blob, passphrase, "admin")
		require.NoError(t, err)
		assert.Zero(t, result.SecretsRestored+result.PoliciesRestored+result.SettingsRestored+result.EncryptionConfigsRestored)
		assert.Equal(t, 6, result.Skipped)
	})

	t.Run("Error_WrongPassphrase", func(t *testing.T) {
		uc := newDR(memory.NewStore(), stubUnseal{}, auditService.NoopPublisher{})

		_, err := uc.Restore(ctx, blob, "another long passphrase", "admin")
		assert.ErrorIs(t, err, drDomain.ErrInvalidBackup)
	})
}

func TestDRUseCase_Readiness(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_EmptyVaultFails", func(t *testing.T) {
		uc := newDR(memory.NewStore(), stubUnseal{}, auditService.NoopPublisher{})

		report, err := uc.Readiness(ctx)
		require.NoError(t, err)
		assert.Equal(t, "F", report.Grade)
		assert.Len(t, report.Checks, 5)
	})

	t.Run("Success_FullyPrepared", func(t *testing.T) {
		uc := newDR(seededStore(t), stubUnseal{configured: true}, auditService.NoopPublisher{})
		report, err := uc.Readiness(ctx)
		require.NoError(t, err)
		assert.Equal(t, "B", report.Grade)

		_, _, err = uc.Backup(ctx, passphrase, "admin")
		require.NoError(t, err)
		report, err = uc.Readiness(ctx)
		require.NoError(t, err)
		assert.Equal(t, "A", report.Grade)
		assert.Equal(t, 100, report.Score)
	})
}
