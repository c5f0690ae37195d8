// Package usecase implements the envelope-encrypted, versioned secret store and the
// process-wide key encryption key it is sealed under.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
)

// SecretRepository persists secret versions. CreateSecret returns ErrConflict when the
// (path, version) pair already exists.
type SecretRepository interface {
	CreateSecret(ctx context.Context, secret *secretsDomain.Secret) error
	// GetSecret returns the latest non-deleted version.
	GetSecret(ctx context.Context, path string) (*secretsDomain.Secret, error)
	GetSecretVersion(ctx context.Context, path string, version int) (*secretsDomain.Secret, error)
	// GetLatestVersion includes tombstoned versions and returns 0 when the path was never written.
	GetLatestVersion(ctx context.Context, path string) (int, error)
	// ListSecrets returns the latest non-deleted version of every path under prefix.
	ListSecrets(ctx context.Context, prefix string) ([]*secretsDomain.Secret, error)
	ListSecretVersions(ctx context.Context, path string) ([]*secretsDomain.Secret, error)
	// ListAllSecrets returns every stored version, tombstoned ones included.
	ListAllSecrets(ctx context.Context) ([]*secretsDomain.Secret, error)
	UpdateSecretCiphertext(ctx context.Context, id uuid.UUID, ciphertext, iv []byte) error
	DeleteSecret(ctx context.Context, path string, deletedAt time.Time) error
	SecretStats(ctx context.Context) (secretsDomain.Stats, error)
}

// KeySource supplies the key secrets are sealed under.
type KeySource interface {
	Key(ctx context.Context) ([]byte, error)
}

// SecretUseCase is the secret store.
type SecretUseCase interface {
	// Get decrypts the given version, or the latest when version is zero.
	//
	// Callers should zero SecretValue.Value after use.
	Get(ctx context.Context, path string, version int) (*secretsDomain.SecretValue, error)
	Put(ctx context.Context, path string, value []byte, opts secretsDomain.PutOptions) (int, error)
	Delete(ctx context.Context, path string, actor string) error
	List(ctx context.Context, prefix string) ([]secretsDomain.Entry, error)
	Versions(ctx context.Context, path string) ([]secretsDomain.VersionInfo, error)
	Import(ctx context.Context, values map[string]string, prefix string, actor string) (*secretsDomain.ImportResult, error)
	Stats(ctx context.Context) (secretsDomain.Stats, error)
}
