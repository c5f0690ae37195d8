// Package domain holds the cryptographic constants and error values shared by the
// vault key hierarchy (KEK, per-purpose DEKs, KMS key material, DR blobs).
package domain

// Algorithm names an AEAD cipher usable for data encryption keys.
type Algorithm string

const (
	// AESGCM is AES-256 in Galois/Counter Mode. Every KEK, KMS wrap and secret payload uses it.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 is ChaCha20-Poly1305, selectable for DEKs via DEK_ALGORITHM.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

const (
	// KeySize is the size in bytes of every symmetric key in the vault.
	KeySize = 32

	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12

	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16

	// SaltSize is the salt length used for PBKDF2 derivations.
	SaltSize = 16

	// PBKDF2Iterations is the iteration count for every password-derived key.
	PBKDF2Iterations = 100_000
)

// ParseAlgorithm maps a configuration string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AESGCM, "":
		return AESGCM, nil
	case ChaCha20:
		return ChaCha20, nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}
