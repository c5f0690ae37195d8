package domain

import (
	"github.com/allisson/keyvault/internal/errors"
)

var (
	// ErrUnsupportedAlgorithm indicates an unknown AEAD algorithm name.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates a key that is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrDecryptionFailed indicates a wrong key, a tampered tag or corrupt ciphertext.
	// The concrete cause is never disclosed.
	ErrDecryptionFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")
)
