package service

import (
	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
)

// AEADManagerService selects an AEAD implementation by algorithm.
type AEADManagerService struct{}

func NewAEADManager() *AEADManagerService {
	return &AEADManagerService{}
}

// CreateCipher validates the key size before dispatching on the algorithm.
func (am *AEADManagerService) CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	switch alg {
	case cryptoDomain.AESGCM:
		return NewAESGCM(key)
	case cryptoDomain.ChaCha20:
		return NewChaCha20Poly1305(key)
	default:
		return nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
}
