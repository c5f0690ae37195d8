package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	dekUsecase "github.com/allisson/keyvault/internal/dek/usecase"
	kmsService "github.com/allisson/keyvault/internal/kms/service"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/storage/memory"
)

func newTestRegistry(t *testing.T, store *memory.Store) dekUsecase.DekRegistry {
	t.Helper()
	settingsStore := settings.NewStore(store)
	kms, err := kmsService.NewLocalProvider(settingsStore, "test-master-secret")
	require.NoError(t, err)
	return dekUsecase.NewDekRegistry(settingsStore, kms, cryptoService.NewAEADManager(), cryptoDomain.AESGCM, testLogger())
}

func strPtr(s string) *string { return &s }

func TestDekRotationUseCase(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	registry := newTestRegistry(t, store)
	audit := auditUsecase.NewAuditLogUseCase(store, auditService.NewAuditSigner(), nil, testLogger())
	uc := NewDekRotationUseCase(registry, store, store, audit, testLogger())

	require.NoError(t, store.SaveEncryptionConfig(ctx, &dekDomain.EncryptionConfig{
		TableName:       "patients",
		DekPurpose:      dekDomain.PurposePII,
		EncryptedFields: []string{"ssn", "phone"},
		Enabled:         true,
	}))

	for i, ssn := range []string{"111-11-1111", "222-22-2222", "333-33-3333"} {
		framed, err := registry.EncryptField(ctx, dekDomain.PurposePII, ssn)
		require.NoError(t, err)
		store.PutRow("patients", string(rune('a'+i)), map[string]*string{"ssn": &framed, "phone": nil})
	}
	store.PutRow("patients", "d", map[string]*string{"ssn": strPtr("plaintext-ssn")})
	store.PutRow("patients", "e", map[string]*string{"ssn": strPtr("v1:AAAAAAAAAAAAAAAA:AAAAAAAAAAAAAAAAAAAAAA==")})

	rotated := uc.Rotate(ctx, dekDomain.PurposePII, "alice")
	require.True(t, rotated.Success, rotated.Error)
	assert.Equal(t, 1, rotated.OldVersion)
	assert.Equal(t, 2, rotated.NewVersion)

	progress, err := uc.Progress(ctx, dekDomain.PurposePII)
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, 2, progress[0].CurrentVersion)
	assert.Equal(t, 4, progress[0].ByVersion[1])
	assert.Equal(t, 1, progress[0].Plaintext)

	t.Run("Success_SweepMigratesRows", func(t *testing.T) {
		result, err := uc.ReEncryptTable(ctx, "patients", "", 2)
		require.NoError(t, err)
		assert.Equal(t, 5, result.Total)
		assert.Equal(t, 3, result.ReEncrypted)
		assert.Equal(t, 1, result.Failed)
		assert.Equal(t, 1, result.Skipped)

		field, ok := dekDomain.ParseField(*store.Row("patients", "b")["ssn"])
		require.True(t, ok)
		assert.Equal(t, 2, field.Version)

		plaintext, err := registry.DecryptField(ctx, dekDomain.PurposePII, *store.Row("patients", "b")["ssn"])
		require.NoError(t, err)
		assert.Equal(t, "222-22-2222", plaintext)
		assert.Equal(t, "plaintext-ssn", *store.Row("patients", "d")["ssn"])
	})

	t.Run("Success_RerunIsNoop", func(t *testing.T) {
		results, err := uc.ReEncryptAll(ctx, dekDomain.PurposePII)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 0, results[0].ReEncrypted)
		assert.Equal(t, 1, results[0].Failed)

		progress, err := uc.Progress(ctx, dekDomain.PurposePII)
		require.NoError(t, err)
		assert.Equal(t, 3, progress[0].ByVersion[2])
	})

	t.Run("Error_UnknownTable", func(t *testing.T) {
		_, err := uc.ReEncryptTable(ctx, "visits", "", 0)
		assert.ErrorIs(t, err, rotationDomain.ErrNoEncryptionConfig)
	})

	t.Run("Error_UnsafeTable", func(t *testing.T) {
		_, err := uc.ReEncryptTable(ctx, "visits;drop", "", 0)
		assert.ErrorIs(t, err, dekDomain.ErrInvalidIdentifier)
	})
}
