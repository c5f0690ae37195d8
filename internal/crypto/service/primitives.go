package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
)

// Seal encrypts plaintext with AES-256-GCM under key and returns ciphertext||tag and the IV.
func Seal(key, plaintext []byte) (ciphertext, iv []byte, err error) {
	c, err := NewAESGCM(key)
	if err != nil {
		return nil, nil, err
	}
	return c.Encrypt(plaintext, nil)
}

// Open reverses Seal. Any failure is reported as ErrDecryptionFailed.
func Open(key, ciphertext, iv []byte) ([]byte, error) {
	c, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(ciphertext, iv, nil)
}

// DeriveKey derives a 256-bit key from a password with PBKDF2-HMAC-SHA256.
func DeriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, cryptoDomain.KeySize, sha256.New)
}

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, apperrors.Wrap(err, "failed to read random bytes")
	}
	return b, nil
}

// NewKey returns a fresh 256-bit key.
func NewKey() ([]byte, error) {
	return RandomBytes(cryptoDomain.KeySize)
}

// ConstantTimeEqual compares two byte slices without leaking timing information about their contents.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
