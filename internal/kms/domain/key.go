// Package domain models named KMS keys and the results of KMS operations.
package domain

import (
	"time"
)

// KeyType is the kind of key material a KMS key holds.
type KeyType string

const (
	KeyTypeAES256  KeyType = "AES256"
	KeyTypeRSA2048 KeyType = "RSA2048"
	KeyTypeRSA4096 KeyType = "RSA4096"
	KeyTypeECP256  KeyType = "ECP256"
	KeyTypeECP384  KeyType = "ECP384"
)

// Valid reports whether t is a known key type.
func (t KeyType) Valid() bool {
	switch t {
	case KeyTypeAES256, KeyTypeRSA2048, KeyTypeRSA4096, KeyTypeECP256, KeyTypeECP384:
		return true
	}
	return false
}

// Provider names.
const (
	ProviderLocal  = "local"
	ProviderRemote = "remote"
)

// Algorithm labels attached to encrypt/wrap results.
const (
	AlgorithmLocalGCM   = "AES-256-GCM"
	AlgorithmLocalWrap  = "AES-256-GCM-LOCAL"
	AlgorithmRemoteWrap = "REMOTE-KEEPER"
)

// KeyInfo describes a named key without exposing its material.
type KeyInfo struct {
	Name      string            `json:"name"`
	Type      KeyType           `json:"type"`
	Version   int               `json:"version"`
	Enabled   bool              `json:"enabled"`
	Provider  string            `json:"provider"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	RotatedAt *time.Time        `json:"rotatedAt,omitempty"`
}

// CreateKeyRequest describes a new key.
type CreateKeyRequest struct {
	Name string
	Type KeyType
	Tags map[string]string
}

// EncryptResult is the output of Encrypt and WrapKey.
type EncryptResult struct {
	Ciphertext []byte
	IV         []byte
	KeyName    string
	KeyVersion int
	Algorithm  string
}
