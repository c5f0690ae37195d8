// Package usecase issues and revokes short-lived database credentials.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	credentialDomain "github.com/allisson/keyvault/internal/credential/domain"
	credentialService "github.com/allisson/keyvault/internal/credential/service"
)

// CredentialRepository persists credential bookkeeping records.
type CredentialRepository interface {
	CreateCredential(ctx context.Context, cred *credentialDomain.Credential) error
	GetCredential(ctx context.Context, id uuid.UUID) (*credentialDomain.Credential, error)
	ListCredentials(ctx context.Context, includeRevoked bool) ([]*credentialDomain.Credential, error)
	RevokeCredential(ctx context.Context, id uuid.UUID, revokedAt time.Time) error
	// ListExpiredCredentials returns unrevoked credentials whose expiry is at or before now.
	ListExpiredCredentials(ctx context.Context, now time.Time) ([]*credentialDomain.Credential, error)
}

// RoleManager creates and drops roles on a target database.
type RoleManager interface {
	CreateRole(ctx context.Context, admin credentialService.AdminConn, role credentialService.RoleSpec) error
	DropRole(ctx context.Context, admin credentialService.AdminConn, username string) error
}

// FieldCipher encrypts the stored admin password.
type FieldCipher interface {
	EncryptField(ctx context.Context, purpose, plaintext string) (string, error)
	DecryptField(ctx context.Context, purpose, framed string) (string, error)
}

// CredentialUseCase is the dynamic credential provider.
type CredentialUseCase interface {
	Generate(ctx context.Context, req credentialDomain.Request) (*credentialDomain.Result, error)
	Revoke(ctx context.Context, id uuid.UUID, actor string) error
	// RevokeExpired sweeps expired credentials. A failing row is logged and skipped.
	RevokeExpired(ctx context.Context) (int, error)
	Get(ctx context.Context, id uuid.UUID) (*credentialDomain.Credential, error)
	List(ctx context.Context, includeRevoked bool) ([]*credentialDomain.Credential, error)
}
