package service

import (
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
)

// ChaCha20Poly1305Cipher is the ChaCha20-Poly1305 AEAD, offered as an alternative DEK algorithm.
type ChaCha20Poly1305Cipher struct {
	aead cipher.AEAD
}

func NewChaCha20Poly1305(key []byte) (*ChaCha20Poly1305Cipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create chacha20-poly1305 cipher")
	}
	return &ChaCha20Poly1305Cipher{aead: aead}, nil
}

func (c *ChaCha20Poly1305Cipher) Encrypt(plaintext, aad []byte) ([]byte, []byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to generate nonce")
	}
	return c.aead.Seal(nil, nonce, plaintext, aad), nonce, nil
}

func (c *ChaCha20Poly1305Cipher) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	return plaintext, nil
}
