// Package usecase implements the purpose-scoped DEK registry and field-level encryption.
package usecase

import (
	"context"

	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
)

// EncryptionConfigRepository persists encryption configs, one per table.
type EncryptionConfigRepository interface {
	SaveEncryptionConfig(ctx context.Context, cfg *dekDomain.EncryptionConfig) error
	GetEncryptionConfig(ctx context.Context, tableName string) (*dekDomain.EncryptionConfig, error)
	ListEncryptionConfigs(ctx context.Context) ([]*dekDomain.EncryptionConfig, error)
	DeleteEncryptionConfig(ctx context.Context, tableName string) error
}

// FieldStore reads and writes encrypted columns of application tables. Rows are
// addressed by their "id" column; table and field names are already sanitized.
type FieldStore interface {
	CountRows(ctx context.Context, table string) (int, error)
	ListRows(ctx context.Context, table string, fields []string, offset, limit int) ([]*dekDomain.Row, error)
	UpdateRowField(ctx context.Context, table, id, field, value string) error
}

// DekRegistry resolves DEKs per purpose and frames encrypted field values.
type DekRegistry interface {
	// Current returns the current key for purpose, creating version 1 on first use.
	Current(ctx context.Context, purpose string) (*dekDomain.Key, error)
	Get(ctx context.Context, purpose string, version int) (*dekDomain.Key, error)
	// Rotate archives the current version and installs version N+1.
	Rotate(ctx context.Context, purpose string) (oldVersion, newVersion int, err error)
	VersionInfo(ctx context.Context, purpose string) (*dekDomain.VersionInfo, error)
	Purposes(ctx context.Context) ([]string, error)

	EncryptField(ctx context.Context, purpose, plaintext string) (string, error)
	// DecryptField tries the framed version first, then every retained version newest
	// to oldest.
	DecryptField(ctx context.Context, purpose, framed string) (string, error)
}

// EncryptionConfigUseCase manages encryption configs.
type EncryptionConfigUseCase interface {
	Save(ctx context.Context, cfg *dekDomain.EncryptionConfig) (*dekDomain.EncryptionConfig, error)
	Get(ctx context.Context, tableName string) (*dekDomain.EncryptionConfig, error)
	List(ctx context.Context) ([]*dekDomain.EncryptionConfig, error)
	Delete(ctx context.Context, tableName string) error
}
