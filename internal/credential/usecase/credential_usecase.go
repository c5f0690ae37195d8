package usecase

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	credentialDomain "github.com/allisson/keyvault/internal/credential/domain"
	credentialService "github.com/allisson/keyvault/internal/credential/service"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	"github.com/allisson/keyvault/internal/database"
	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

// Audit actions written by the credential provider.
const (
	ActionCredentialGenerate   = "dynamic.generate"
	ActionCredentialRevoke     = "dynamic.revoke"
	ActionCredentialAutoRevoke = "dynamic.auto-revoke"

	resourceCredential = "dynamic-credential"

	usernamePrefix   = "v_dyn_"
	usernameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	usernameLength   = 16
	passwordBytes    = 24

	systemActor = "system"
)

type credentialUseCase struct {
	txManager database.TxManager
	repo      CredentialRepository
	roles     RoleManager
	cipher    FieldCipher
	audit     auditUsecase.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewCredentialUseCase creates the dynamic credential provider.
func NewCredentialUseCase(
	txManager database.TxManager,
	repo CredentialRepository,
	roles RoleManager,
	cipher FieldCipher,
	audit auditUsecase.Recorder,
	logger *slog.Logger,
) CredentialUseCase {
	return &credentialUseCase{
		txManager: txManager,
		repo:      repo,
		roles:     roles,
		cipher:    cipher,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func newUsername() (string, error) {
	suffix, err := nanoid.Generate(usernameAlphabet, usernameLength)
	if err != nil {
		return "", err
	}
	return usernamePrefix + suffix, nil
}

func newPassword() (string, error) {
	b, err := cryptoService.RandomBytes(passwordBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Generate mints a role on the target database. The username is always generated
// here; caller-supplied table names must pass the identifier allow-list.
func (u *credentialUseCase) Generate(
	ctx context.Context,
	req credentialDomain.Request,
) (*credentialDomain.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, customValidation.WrapValidationError(err)
	}
	for _, table := range req.GrantedTables {
		if !customValidation.IsSQLIdentifier(table) {
			return nil, apperrors.Wrap(credentialDomain.ErrInvalidIdentifier, table)
		}
	}

	username, err := newUsername()
	if err != nil {
		return nil, err
	}
	password, err := newPassword()
	if err != nil {
		return nil, err
	}

	now := u.now()
	expiresAt := now.Add(time.Duration(req.TTLSeconds) * time.Second)
	admin := credentialService.AdminConn{
		Host:     req.Host,
		Port:     req.Port,
		Database: req.Database,
		User:     req.AdminUser,
		Password: req.AdminPassword,
		SSLMode:  req.SSLMode,
	}

	encryptedAdmin, err := u.cipher.EncryptField(ctx, dekDomain.PurposeCredentials, req.AdminPassword)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encrypt admin password")
	}

	err = u.roles.CreateRole(ctx, admin, credentialService.RoleSpec{
		Database:      req.Database,
		Username:      username,
		Password:      password,
		ValidUntil:    expiresAt,
		GrantedTables: req.GrantedTables,
		ReadOnly:      req.ReadOnly,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create database role")
	}

	cred := &credentialDomain.Credential{
		ID:                     uuid.Must(uuid.NewV7()),
		Username:               username,
		Host:                   req.Host,
		Port:                   req.Port,
		Database:               req.Database,
		AdminUser:              req.AdminUser,
		AdminPasswordEncrypted: encryptedAdmin,
		GrantedTables:          req.GrantedTables,
		ReadOnly:               req.ReadOnly,
		SSLMode:                req.SSLMode,
		ExpiresAt:              expiresAt,
		CreatedBy:              req.RequestedBy,
		CreatedAt:              now,
	}

	err = u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.repo.CreateCredential(txCtx, cred); err != nil {
			return err
		}
		return u.audit.Record(txCtx, auditDomain.Entry{
			Action:       ActionCredentialGenerate,
			ResourceType: resourceCredential,
			ResourceID:   cred.ID.String(),
			ActorID:      req.RequestedBy,
			Details: map[string]any{
				"username":  username,
				"database":  req.Database,
				"readOnly":  req.ReadOnly,
				"expiresAt": expiresAt,
			},
		})
	})
	if err != nil {
		// The role exists without bookkeeping; drop it so it cannot outlive its record.
		if dropErr := u.roles.DropRole(ctx, admin, username); dropErr != nil {
			u.logger.Error("failed to drop orphaned role",
				slog.String("username", username), slog.Any("error", dropErr))
		}
		return nil, apperrors.Wrap(err, "failed to record dynamic credential")
	}

	u.logger.Info("dynamic credential generated",
		slog.String("id", cred.ID.String()),
		slog.String("username", username),
		slog.Time("expires_at", expiresAt),
	)

	return &credentialDomain.Result{
		ID:       cred.ID,
		Username: username,
		Password: password,
		ConnectionString: credentialService.ConnectionString(
			req.Host, req.Port, req.Database, username, password, req.SSLMode,
		),
		ExpiresAt: expiresAt,
	}, nil
}

func (u *credentialUseCase) Get(ctx context.Context, id uuid.UUID) (*credentialDomain.Credential, error) {
	cred, err := u.repo.GetCredential(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, credentialDomain.ErrCredentialNotFound
		}
		return nil, err
	}
	return cred, nil
}

func (u *credentialUseCase) List(ctx context.Context, includeRevoked bool) ([]*credentialDomain.Credential, error) {
	return u.repo.ListCredentials(ctx, includeRevoked)
}

func (u *credentialUseCase) Revoke(ctx context.Context, id uuid.UUID, actor string) error {
	cred, err := u.Get(ctx, id)
	if err != nil {
		return err
	}
	return u.revoke(ctx, cred, actor, ActionCredentialRevoke)
}

func (u *credentialUseCase) revoke(
	ctx context.Context,
	cred *credentialDomain.Credential,
	actor, action string,
) error {
	if cred.Revoked {
		return credentialDomain.ErrCredentialRevoked
	}

	adminPassword, err := u.cipher.DecryptField(ctx, dekDomain.PurposeCredentials, cred.AdminPasswordEncrypted)
	if err != nil {
		return apperrors.Wrap(err, "failed to decrypt admin password")
	}

	admin := credentialService.AdminConn{
		Host:     cred.Host,
		Port:     cred.Port,
		Database: cred.Database,
		User:     cred.AdminUser,
		Password: adminPassword,
		SSLMode:  cred.SSLMode,
	}
	if err := u.roles.DropRole(ctx, admin, cred.Username); err != nil {
		return apperrors.Wrap(err, "failed to drop database role")
	}

	return u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.repo.RevokeCredential(txCtx, cred.ID, u.now()); err != nil {
			return err
		}
		return u.audit.Record(txCtx, auditDomain.Entry{
			Action:       action,
			ResourceType: resourceCredential,
			ResourceID:   cred.ID.String(),
			ActorID:      actor,
			Details:      map[string]any{"username": cred.Username},
		})
	})
}

func (u *credentialUseCase) RevokeExpired(ctx context.Context) (int, error) {
	expired, err := u.repo.ListExpiredCredentials(ctx, u.now())
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, cred := range expired {
		if err := ctx.Err(); err != nil {
			return revoked, err
		}
		if err := u.revoke(ctx, cred, systemActor, ActionCredentialAutoRevoke); err != nil {
			u.logger.Warn("failed to revoke expired credential",
				slog.String("id", cred.ID.String()),
				slog.String("username", cred.Username),
				slog.Any("error", err),
			)
			continue
		}
		revoked++
	}
	return revoked, nil
}
