// Package service implements the KMS providers: a local provider that keeps AES-256
// key material encrypted in the settings table, a remote provider delegating to an
// external key custody service through gocloud.dev keepers, and a fallback provider
// that degrades to local when the remote one is unhealthy.
package service

import (
	"context"

	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
)

// Provider is the provider-agnostic KMS interface. All call sites depend on it only.
type Provider interface {
	Name() string
	IsHealthy(ctx context.Context) bool

	CreateKey(ctx context.Context, req kmsDomain.CreateKeyRequest) (*kmsDomain.KeyInfo, error)
	GetKeyInfo(ctx context.Context, name string) (*kmsDomain.KeyInfo, error)
	ListKeys(ctx context.Context) ([]*kmsDomain.KeyInfo, error)
	RotateKey(ctx context.Context, name string) (*kmsDomain.KeyInfo, error)

	Encrypt(ctx context.Context, keyName string, plaintext []byte) (*kmsDomain.EncryptResult, error)
	Decrypt(ctx context.Context, keyName string, ciphertext, iv []byte) ([]byte, error)

	WrapKey(ctx context.Context, keyName string, rawKey []byte) (*kmsDomain.EncryptResult, error)
	UnwrapKey(ctx context.Context, keyName string, wrapped, iv []byte) ([]byte, error)
}

// Keeper is the subset of *gocloud.dev/secrets.Keeper the remote provider uses.
type Keeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// KeeperOpener opens a Keeper for a key URI.
type KeeperOpener interface {
	OpenKeeper(ctx context.Context, keyURI string) (Keeper, error)
}
