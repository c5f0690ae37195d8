package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
)

func TestAEADManagerService_CreateCipher(t *testing.T) {
	manager := NewAEADManager()
	key, err := NewKey()
	require.NoError(t, err)

	for _, alg := range []cryptoDomain.Algorithm{cryptoDomain.AESGCM, cryptoDomain.ChaCha20} {
		t.Run("Success_RoundTrip_"+string(alg), func(t *testing.T) {
			c, err := manager.CreateCipher(key, alg)
			require.NoError(t, err)

			ciphertext, nonce, err := c.Encrypt([]byte("patient-db-password"), []byte("aad"))
			require.NoError(t, err)

			plaintext, err := c.Decrypt(ciphertext, nonce, []byte("aad"))
			require.NoError(t, err)
			assert.Equal(t, "patient-db-password", string(plaintext))

			_, err = c.Decrypt(ciphertext, nonce, []byte("other"))
			assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
		})
	}

	t.Run("Error_UnsupportedAlgorithm", func(t *testing.T) {
		_, err := manager.CreateCipher(key, cryptoDomain.Algorithm("rot13"))
		assert.ErrorIs(t, err, cryptoDomain.ErrUnsupportedAlgorithm)
	})

	t.Run("Error_InvalidKeySize", func(t *testing.T) {
		_, err := manager.CreateCipher(make([]byte, 16), cryptoDomain.AESGCM)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
	})
}

func TestSealOpen(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)

	t.Run("Success_FreshIVPerCall", func(t *testing.T) {
		ct1, iv1, err := Seal(key, []byte("s3cr3t"))
		require.NoError(t, err)
		ct2, iv2, err := Seal(key, []byte("s3cr3t"))
		require.NoError(t, err)

		assert.Len(t, iv1, cryptoDomain.NonceSize)
		assert.NotEqual(t, iv1, iv2)
		assert.NotEqual(t, ct1, ct2)
		assert.Len(t, ct1, len("s3cr3t")+cryptoDomain.TagSize)

		pt, err := Open(key, ct1, iv1)
		require.NoError(t, err)
		assert.Equal(t, []byte("s3cr3t"), pt)
	})

	t.Run("Error_WrongKey", func(t *testing.T) {
		ct, iv, err := Seal(key, []byte("s3cr3t"))
		require.NoError(t, err)

		other, err := NewKey()
		require.NoError(t, err)

		pt, err := Open(other, ct, iv)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
		assert.Nil(t, pt)
	})

	t.Run("Error_TamperedTag", func(t *testing.T) {
		ct, iv, err := Seal(key, []byte("s3cr3t"))
		require.NoError(t, err)
		ct[len(ct)-1] ^= 0xff

		_, err = Open(key, ct, iv)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("Error_ShortIV", func(t *testing.T) {
		ct, _, err := Seal(key, []byte("s3cr3t"))
		require.NoError(t, err)

		_, err = Open(key, ct, []byte{1, 2, 3})
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("IVF-Vault-KEK-Salt-2026")

	k1 := DeriveKey("password", salt, 1000)
	k2 := DeriveKey("password", salt, 1000)
	k3 := DeriveKey("password2", salt, 1000)

	assert.Len(t, k1, cryptoDomain.KeySize)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual([]byte("abc"), []byte("abc")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("abd")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("abcd")))
}

func TestSHA256Hex(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(nil),
	)
}
