package usecase

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	kmsService "github.com/allisson/keyvault/internal/kms/service"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/storage/memory"
)

func newTestRegistry(t *testing.T) (DekRegistry, *settings.Store) {
	t.Helper()
	store := settings.NewStore(memory.NewStore())
	kms, err := kmsService.NewLocalProvider(store, "test-master-secret")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDekRegistry(store, kms, cryptoService.NewAEADManager(), cryptoDomain.AESGCM, logger), store
}

func TestDekRegistry_Current(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CreatesVersionOne", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		key, err := reg.Current(ctx, dekDomain.PurposePII)
		require.NoError(t, err)
		assert.Equal(t, 1, key.Version)
		assert.Len(t, key.Material, cryptoDomain.KeySize)

		again, err := reg.Current(ctx, dekDomain.PurposePII)
		require.NoError(t, err)
		assert.Equal(t, key.Material, again.Material)

		info, err := reg.VersionInfo(ctx, dekDomain.PurposePII)
		require.NoError(t, err)
		assert.Equal(t, 1, info.CurrentVersion)
		assert.Nil(t, info.RotatedAt)
	})

	t.Run("Error_InvalidPurpose", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		_, err := reg.Current(ctx, "pii; drop table")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_VersionInfoUnknownPurpose", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		_, err := reg.VersionInfo(ctx, "never-used")
		assert.ErrorIs(t, err, dekDomain.ErrDekNotFound)
	})
}

func TestDekRegistry_Rotate(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)

	framed, err := reg.EncryptField(ctx, dekDomain.PurposeData, "before rotation")
	require.NoError(t, err)

	oldVersion, newVersion, err := reg.Rotate(ctx, dekDomain.PurposeData)
	require.NoError(t, err)
	assert.Equal(t, 1, oldVersion)
	assert.Equal(t, 2, newVersion)

	info, err := reg.VersionInfo(ctx, dekDomain.PurposeData)
	require.NoError(t, err)
	assert.Equal(t, 2, info.CurrentVersion)
	assert.NotNil(t, info.RotatedAt)
	assert.Equal(t, 1, info.OldVersionsKept)

	archived, err := store.Exists(ctx, "dek-data-v1")
	require.NoError(t, err)
	assert.True(t, archived)

	plaintext, err := reg.DecryptField(ctx, dekDomain.PurposeData, framed)
	require.NoError(t, err)
	assert.Equal(t, "before rotation", plaintext)

	fresh, err := reg.EncryptField(ctx, dekDomain.PurposeData, "after rotation")
	require.NoError(t, err)
	field, ok := dekDomain.ParseField(fresh)
	require.True(t, ok)
	assert.Equal(t, 2, field.Version)

	v1, err := reg.Get(ctx, dekDomain.PurposeData, 1)
	require.NoError(t, err)
	v2, err := reg.Get(ctx, dekDomain.PurposeData, 2)
	require.NoError(t, err)
	assert.NotEqual(t, v1.Material, v2.Material)

	_, err = reg.Get(ctx, dekDomain.PurposeData, 7)
	assert.ErrorIs(t, err, dekDomain.ErrDekNotFound)
}

func TestDekRegistry_DecryptField(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_MislabelledVersion", func(t *testing.T) {
		reg, _ := newTestRegistry(t)
		framed, err := reg.EncryptField(ctx, dekDomain.PurposePII, "555-0100")
		require.NoError(t, err)
		_, _, err = reg.Rotate(ctx, dekDomain.PurposePII)
		require.NoError(t, err)

		field, _ := dekDomain.ParseField(framed)
		field.Version = 2

		plaintext, err := reg.DecryptField(ctx, dekDomain.PurposePII, field.String())
		require.NoError(t, err)
		assert.Equal(t, "555-0100", plaintext)
	})

	t.Run("Error_NotAFrame", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		_, err := reg.DecryptField(ctx, dekDomain.PurposePII, "plain value")
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("Error_WrongPurpose", func(t *testing.T) {
		reg, _ := newTestRegistry(t)
		framed, err := reg.EncryptField(ctx, dekDomain.PurposePII, "secret")
		require.NoError(t, err)
		_, err = reg.Current(ctx, dekDomain.PurposeData)
		require.NoError(t, err)

		_, err = reg.DecryptField(ctx, dekDomain.PurposeData, framed)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})
}

func TestDekRegistry_Purposes(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, err := reg.Current(ctx, dekDomain.PurposePII)
	require.NoError(t, err)
	_, err = reg.Current(ctx, dekDomain.PurposeCredentials)
	require.NoError(t, err)

	purposes, err := reg.Purposes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{dekDomain.PurposePII, dekDomain.PurposeCredentials}, purposes)
}
