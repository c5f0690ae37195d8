// Package service implements the symmetric primitives every vault module builds on:
// AEAD ciphers, AES-256-GCM seal/open with detached IVs, PBKDF2 derivation and
// constant-time comparison.
package service

import (
	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
)

// AEAD encrypts with a fresh random nonce per call and authenticates optional associated data.
type AEAD interface {
	// Encrypt returns ciphertext (with the tag appended) and the nonce used.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt returns ErrDecryptionFailed on any authentication failure.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager builds an AEAD for a key and algorithm.
type AEADManager interface {
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}
