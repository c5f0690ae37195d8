// Package service encrypts and decrypts DR snapshot blobs with a passphrase.
package service

import (
	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	drDomain "github.com/allisson/keyvault/internal/dr/domain"
)

const (
	saltSize = drDomain.IVOffset - drDomain.SaltOffset
	ivSize   = drDomain.TagOffset - drDomain.IVOffset
	tagSize  = drDomain.HeaderSize - drDomain.TagOffset
)

// SealBlob encrypts plaintext under a PBKDF2 key derived from passphrase and a fresh salt.
// The result is framed as [salt 16][iv 12][tag 16][ciphertext].
func SealBlob(plaintext []byte, passphrase string) ([]byte, error) {
	salt, err := cryptoService.RandomBytes(saltSize)
	if err != nil {
		return nil, err
	}
	key := cryptoService.DeriveKey(passphrase, salt, cryptoDomain.PBKDF2Iterations)
	defer cryptoDomain.Zero(key)

	sealed, iv, err := cryptoService.Seal(key, plaintext)
	if err != nil {
		return nil, err
	}
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, drDomain.HeaderSize+len(ct))
	blob = append(blob, salt...)
	blob = append(blob, iv...)
	blob = append(blob, tag...)
	return append(blob, ct...), nil
}

// OpenBlob reverses SealBlob. A wrong passphrase, truncation and tampering all yield
// ErrInvalidBackup.
func OpenBlob(blob []byte, passphrase string) ([]byte, error) {
	if len(blob) < drDomain.HeaderSize {
		return nil, drDomain.ErrInvalidBackup
	}
	salt := blob[drDomain.SaltOffset:drDomain.IVOffset]
	iv := blob[drDomain.IVOffset:drDomain.TagOffset]
	tag := blob[drDomain.TagOffset:drDomain.HeaderSize]
	ct := blob[drDomain.HeaderSize:]

	key := cryptoService.DeriveKey(passphrase, salt, cryptoDomain.PBKDF2Iterations)
	defer cryptoDomain.Zero(key)

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plaintext, err := cryptoService.Open(key, sealed, iv)
	if err != nil {
		return nil, drDomain.ErrInvalidBackup
	}
	return plaintext, nil
}
