package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLocal(t *testing.T) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider(settings.NewStore(memory.NewStore()), "master-secret")
	require.NoError(t, err)
	return p
}

func TestNewLocalProvider(t *testing.T) {
	_, err := NewLocalProvider(settings.NewStore(memory.NewStore()), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestLocalProvider_CreateKey(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		p := newLocal(t)

		info, err := p.CreateKey(ctx, kmsDomain.CreateKeyRequest{Name: "app", Tags: map[string]string{"env": "prod"}})
		require.NoError(t, err)
		assert.Equal(t, kmsDomain.KeyTypeAES256, info.Type)
		assert.Equal(t, 1, info.Version)
		assert.True(t, info.Enabled)

		keys, err := p.ListKeys(ctx)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, "prod", keys[0].Tags["env"])
	})

	t.Run("Error_Duplicate", func(t *testing.T) {
		p := newLocal(t)
		_, err := p.CreateKey(ctx, kmsDomain.CreateKeyRequest{Name: "app"})
		require.NoError(t, err)

		_, err = p.CreateKey(ctx, kmsDomain.CreateKeyRequest{Name: "app"})
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("Error_UnsupportedType", func(t *testing.T) {
		p := newLocal(t)

		_, err := p.CreateKey(ctx, kmsDomain.CreateKeyRequest{Name: "rsa", Type: kmsDomain.KeyTypeRSA2048})
		assert.ErrorIs(t, err, kmsDomain.ErrUnsupportedKeyType)
	})

	t.Run("Error_UnknownKey", func(t *testing.T) {
		p := newLocal(t)

		_, err := p.GetKeyInfo(ctx, "missing")
		assert.ErrorIs(t, err, kmsDomain.ErrKeyNotFound)
	})
}

func TestLocalProvider_EncryptDecrypt(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CreatesKeyOnFirstUse", func(t *testing.T) {
		p := newLocal(t)

		res, err := p.Encrypt(ctx, "app", []byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, "app", res.KeyName)
		assert.Equal(t, 1, res.KeyVersion)
		assert.Equal(t, kmsDomain.AlgorithmLocalGCM, res.Algorithm)
		assert.Len(t, res.IV, cryptoDomain.NonceSize)

		pt, err := p.Decrypt(ctx, "app", res.Ciphertext, res.IV)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), pt)
	})

	t.Run("Success_OldVersionsReadableAfterRotate", func(t *testing.T) {
		p := newLocal(t)
		raw := []byte("0123456789abcdef0123456789abcdef")

		v1, err := p.WrapKey(ctx, "kek", raw)
		require.NoError(t, err)

		info, err := p.RotateKey(ctx, "kek")
		require.NoError(t, err)
		assert.Equal(t, 2, info.Version)
		assert.NotNil(t, info.RotatedAt)

		v2, err := p.WrapKey(ctx, "kek", raw)
		require.NoError(t, err)
		assert.Equal(t, 2, v2.KeyVersion)

		for _, res := range []*kmsDomain.EncryptResult{v1, v2} {
			got, err := p.UnwrapKey(ctx, "kek", res.Ciphertext, res.IV)
			require.NoError(t, err)
			assert.Equal(t, raw, got)
		}
	})

	t.Run("Error_WrongMasterSecret", func(t *testing.T) {
		store := settings.NewStore(memory.NewStore())
		p, err := NewLocalProvider(store, "one")
		require.NoError(t, err)
		res, err := p.Encrypt(ctx, "app", []byte("hello"))
		require.NoError(t, err)

		other, err := NewLocalProvider(store, "two")
		require.NoError(t, err)
		_, err = other.Decrypt(ctx, "app", res.Ciphertext, res.IV)
		assert.Error(t, err)
	})

	t.Run("Error_TamperedCiphertext", func(t *testing.T) {
		p := newLocal(t)
		res, err := p.Encrypt(ctx, "app", []byte("hello"))
		require.NoError(t, err)

		res.Ciphertext[0] ^= 0xff
		_, err = p.Decrypt(ctx, "app", res.Ciphertext, res.IV)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})
}
