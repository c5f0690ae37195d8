package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	"github.com/allisson/keyvault/internal/database"
	kmsService "github.com/allisson/keyvault/internal/kms/service"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/storage/memory"
)

const testLegacySecret = "legacy-password"

func seedLegacySecret(t *testing.T, store *memory.Store, path string, value []byte) uuid.UUID {
	t.Helper()
	legacy := cryptoService.DeriveKey(testLegacySecret, []byte(legacyKekSalt), cryptoDomain.PBKDF2Iterations)
	ct, iv, err := cryptoService.Seal(legacy, value)
	require.NoError(t, err)

	id := uuid.Must(uuid.NewV7())
	require.NoError(t, store.CreateSecret(context.Background(), &secretsDomain.Secret{
		ID:         id,
		Path:       path,
		Version:    1,
		Ciphertext: ct,
		IV:         iv,
		CreatedAt:  time.Now().UTC(),
	}))
	return id
}

func newTestHolder(t *testing.T, store *memory.Store, repo SecretRepository) *KekHolder {
	t.Helper()
	settingsStore := settings.NewStore(store)
	kms, err := kmsService.NewLocalProvider(settingsStore, "test-master-secret")
	require.NoError(t, err)
	return NewKekHolder(settingsStore, kms, repo, database.NewNoopTxManager(), testLegacySecret, testLogger())
}

func openAll(t *testing.T, store *memory.Store, key []byte) map[string]string {
	t.Helper()
	all, err := store.ListAllSecrets(context.Background())
	require.NoError(t, err)
	out := make(map[string]string)
	for _, s := range all {
		pt, err := cryptoService.Open(key, s.Ciphertext, s.IV)
		if err == nil {
			out[s.Path] = string(pt)
		}
	}
	return out
}

// failingUpdates fails UpdateSecretCiphertext after n successful calls.
type failingUpdates struct {
	*memory.Store
	n int
}

func (f *failingUpdates) UpdateSecretCiphertext(ctx context.Context, id uuid.UUID, ct, iv []byte) error {
	if f.n == 0 {
		return errors.New("connection reset")
	}
	f.n--
	return f.Store.UpdateSecretCiphertext(ctx, id, ct, iv)
}

func TestKekHolder_Migration(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_ReEncryptsLegacySecrets", func(t *testing.T) {
		store := memory.NewStore()
		seedLegacySecret(t, store, "app/a", []byte("alpha"))
		seedLegacySecret(t, store, "app/b", []byte("beta"))

		holder := newTestHolder(t, store, store)
		wrapped, err := holder.IsWrapped(ctx)
		require.NoError(t, err)
		assert.False(t, wrapped)

		key, err := holder.Key(ctx)
		require.NoError(t, err)
		assert.Len(t, key, cryptoDomain.KeySize)
		assert.Equal(t, map[string]string{"app/a": "alpha", "app/b": "beta"}, openAll(t, store, key))

		wrapped, err = holder.IsWrapped(ctx)
		require.NoError(t, err)
		assert.True(t, wrapped)

		restarted := newTestHolder(t, store, store)
		again, err := restarted.Key(ctx)
		require.NoError(t, err)
		assert.Equal(t, key, again)
	})

	t.Run("Success_ResumesInterruptedMigration", func(t *testing.T) {
		store := memory.NewStore()
		seedLegacySecret(t, store, "app/a", []byte("alpha"))
		seedLegacySecret(t, store, "app/b", []byte("beta"))
		seedLegacySecret(t, store, "app/c", []byte("gamma"))

		_, err := newTestHolder(t, store, &failingUpdates{Store: store, n: 1}).Key(ctx)
		require.Error(t, err)

		pending, err := settings.NewStore(store).Exists(ctx, pendingKekSetting)
		require.NoError(t, err)
		assert.True(t, pending)

		key, err := newTestHolder(t, store, store).Key(ctx)
		require.NoError(t, err)
		assert.Len(t, openAll(t, store, key), 3)

		pending, err = settings.NewStore(store).Exists(ctx, pendingKekSetting)
		require.NoError(t, err)
		assert.False(t, pending)
	})

	t.Run("Success_SkipsUndecryptableSecret", func(t *testing.T) {
		store := memory.NewStore()
		seedLegacySecret(t, store, "app/a", []byte("alpha"))
		require.NoError(t, store.CreateSecret(ctx, &secretsDomain.Secret{
			ID:         uuid.Must(uuid.NewV7()),
			Path:       "app/corrupt",
			Version:    1,
			Ciphertext: []byte("garbage-ciphertext-bytes"),
			IV:         make([]byte, 12),
			CreatedAt:  time.Now().UTC(),
		}))

		key, err := newTestHolder(t, store, store).Key(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"app/a": "alpha"}, openAll(t, store, key))
	})
}

func TestKekHolder_Rewrap(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	settingsStore := settings.NewStore(store)
	kms, err := kmsService.NewLocalProvider(settingsStore, "test-master-secret")
	require.NoError(t, err)
	holder := NewKekHolder(settingsStore, kms, store, database.NewNoopTxManager(), testLegacySecret, testLogger())

	key, err := holder.Key(ctx)
	require.NoError(t, err)

	_, err = kms.RotateKey(ctx, KekKmsKeyName)
	require.NoError(t, err)
	require.NoError(t, holder.Rewrap(ctx))

	var rec wrappedKek
	require.NoError(t, settingsStore.Load(ctx, WrappedKekSetting, wrappedKekSchema, &rec))
	assert.Equal(t, 2, rec.KeyVersion)

	again, err := NewKekHolder(settingsStore, kms, store, database.NewNoopTxManager(), testLegacySecret, testLogger()).Key(ctx)
	require.NoError(t, err)
	assert.Equal(t, key, again)
}
