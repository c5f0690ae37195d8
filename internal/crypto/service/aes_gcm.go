package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
)

// AESGCMCipher is AES-256-GCM with 12-byte random nonces.
type AESGCMCipher struct {
	aead cipher.AEAD
}

// NewAESGCM creates an AES-256-GCM cipher. The key must be 32 bytes.
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create aes cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create gcm")
	}

	return &AESGCMCipher{aead: aead}, nil
}

func (a *AESGCMCipher) Encrypt(plaintext, aad []byte) ([]byte, []byte, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to generate nonce")
	}
	return a.aead.Seal(nil, nonce, plaintext, aad), nonce, nil
}

func (a *AESGCMCipher) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(nonce) != a.aead.NonceSize() {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	plaintext, err := a.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	return plaintext, nil
}
