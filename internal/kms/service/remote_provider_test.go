package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/keyvault/internal/errors"
	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/storage/memory"
)

var errKeeperDown = errors.New("connection refused")

// fakeKeeper reverses the plaintext behind a marker prefix.
type fakeKeeper struct {
	down   bool
	closed bool
}

func (k *fakeKeeper) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if k.down {
		return nil, errKeeperDown
	}
	out := append([]byte("remote:"), plaintext...)
	return out, nil
}

func (k *fakeKeeper) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if k.down {
		return nil, errKeeperDown
	}
	pt, ok := bytes.CutPrefix(ciphertext, []byte("remote:"))
	if !ok {
		return nil, errors.New("bad ciphertext")
	}
	return pt, nil
}

func (k *fakeKeeper) Close() error {
	k.closed = true
	return nil
}

type mockKeeperOpener struct {
	mock.Mock
}

func (m *mockKeeperOpener) OpenKeeper(ctx context.Context, keyURI string) (Keeper, error) {
	args := m.Called(ctx, keyURI)
	if k := args.Get(0); k != nil {
		return k.(Keeper), args.Error(1)
	}
	return nil, args.Error(1)
}

func newRemote(t *testing.T, keeper *fakeKeeper, fallbackSecret string) (*RemoteProvider, *mockKeeperOpener) {
	t.Helper()
	opener := &mockKeeperOpener{}
	opener.On("OpenKeeper", mock.Anything, mock.AnythingOfType("string")).Return(keeper, nil)
	p, err := NewRemoteProvider(opener, RemoteConfig{
		KeyURI:         "hashivault://{key}",
		FallbackSecret: fallbackSecret,
	}, settings.NewStore(memory.NewStore()), testLogger())
	require.NoError(t, err)
	return p, opener
}

func TestRemoteProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("Error_MissingURI", func(t *testing.T) {
		_, err := NewRemoteProvider(&mockKeeperOpener{}, RemoteConfig{}, settings.NewStore(memory.NewStore()), testLogger())
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Success_EncryptThroughKeeper", func(t *testing.T) {
		keeper := &fakeKeeper{}
		p, opener := newRemote(t, keeper, "")

		res, err := p.Encrypt(ctx, "app", []byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, kmsDomain.AlgorithmRemoteWrap, res.Algorithm)
		assert.Empty(t, res.IV)

		pt, err := p.Decrypt(ctx, "app", res.Ciphertext, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), pt)

		info, err := p.GetKeyInfo(ctx, "app")
		require.NoError(t, err)
		assert.Equal(t, kmsDomain.KeyTypeRSA2048, info.Type)
		opener.AssertCalled(t, "OpenKeeper", mock.Anything, "hashivault://app")

		require.NoError(t, p.Close())
		assert.True(t, keeper.closed)
	})

	t.Run("Success_HealthCheck", func(t *testing.T) {
		keeper := &fakeKeeper{}
		p, _ := newRemote(t, keeper, "")
		assert.True(t, p.IsHealthy(ctx))

		keeper.down = true
		assert.False(t, p.IsHealthy(ctx))
	})

	t.Run("Success_LocalFallbackWrap", func(t *testing.T) {
		keeper := &fakeKeeper{down: true}
		p, _ := newRemote(t, keeper, "fallback-secret")
		raw := []byte("0123456789abcdef0123456789abcdef")

		res, err := p.WrapKey(ctx, "kek", raw)
		require.NoError(t, err)
		assert.Equal(t, kmsDomain.AlgorithmLocalWrap, res.Algorithm)
		assert.NotEmpty(t, res.IV)

		got, err := p.UnwrapKey(ctx, "kek", res.Ciphertext, res.IV)
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	})

	t.Run("Error_NoFallbackSecret", func(t *testing.T) {
		p, _ := newRemote(t, &fakeKeeper{down: true}, "")

		_, err := p.WrapKey(ctx, "kek", []byte("key"))
		assert.ErrorIs(t, err, kmsDomain.ErrProviderUnavailable)
	})

	t.Run("Success_RotateBumpsVersion", func(t *testing.T) {
		p, _ := newRemote(t, &fakeKeeper{}, "")
		_, err := p.CreateKey(ctx, kmsDomain.CreateKeyRequest{Name: "app", Type: kmsDomain.KeyTypeECP256})
		require.NoError(t, err)

		info, err := p.RotateKey(ctx, "app")
		require.NoError(t, err)
		assert.Equal(t, 2, info.Version)

		keys, err := p.ListKeys(ctx)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, kmsDomain.KeyTypeECP256, keys[0].Type)
	})
}
