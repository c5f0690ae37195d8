package usecase

import (
	"context"
	"log/slog"
	"time"

	validation "github.com/jellydator/validation"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	credentialDomain "github.com/allisson/keyvault/internal/credential/domain"
	"github.com/allisson/keyvault/internal/database"
	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
	"github.com/allisson/keyvault/internal/settings"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

const (
	ActionDbCredentialConfigure = "db.credential.configure"
	ActionDbCredentialRotate    = "db.credential.rotate"

	// DbRotationStateSetting holds the dual-slot state.
	DbRotationStateSetting = "db-rotation-state"
	// ConnectionStringSetting holds the active connection string for configuration consumers.
	ConnectionStringSetting = "config/ConnectionStrings/DefaultConnection"

	dbRotationSchema       = 1
	connectionStringSchema = 1
	resourceDbCredential   = "db-credential"
)

type storedConnectionString struct {
	Encrypted string    `json:"encrypted"`
	Slot      string    `json:"slot"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type dbRotationUseCase struct {
	txManager database.TxManager
	store     *settings.Store
	issuer    CredentialIssuer
	cipher    FieldCipher
	audit     auditUsecase.Recorder
	ttl       int
	logger    *slog.Logger
	now       func() time.Time
}

// NewDbCredentialRotationUseCase creates the dual-slot rotator. Each slot credential
// lives for ttlSeconds.
func NewDbCredentialRotationUseCase(
	txManager database.TxManager,
	store *settings.Store,
	issuer CredentialIssuer,
	cipher FieldCipher,
	audit auditUsecase.Recorder,
	ttlSeconds int,
	logger *slog.Logger,
) DbCredentialRotationUseCase {
	return &dbRotationUseCase{
		txManager: txManager,
		store:     store,
		issuer:    issuer,
		cipher:    cipher,
		audit:     audit,
		ttl:       ttlSeconds,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (u *dbRotationUseCase) loadState(ctx context.Context) (*rotationDomain.DbRotationState, error) {
	var state rotationDomain.DbRotationState
	if err := u.store.Load(ctx, DbRotationStateSetting, dbRotationSchema, &state); err != nil {
		if apperrors.Is(err, settings.ErrSettingNotFound) {
			return nil, rotationDomain.ErrDbRotationNotConfigured
		}
		return nil, err
	}
	return &state, nil
}

// Configure stores the admin login used to mint slot credentials. Slot state survives
// reconfiguration.
func (u *dbRotationUseCase) Configure(ctx context.Context, admin rotationDomain.AdminConfig, actor string) error {
	err := validation.ValidateStruct(&admin,
		validation.Field(&admin.Host, validation.Required),
		validation.Field(&admin.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&admin.Database, validation.Required),
		validation.Field(&admin.User, validation.Required),
		validation.Field(&admin.Password, validation.Required),
	)
	if err != nil {
		return customValidation.WrapValidationError(err)
	}

	encrypted, err := u.cipher.EncryptField(ctx, dekDomain.PurposeCredentials, admin.Password)
	if err != nil {
		return apperrors.Wrap(err, "failed to encrypt admin password")
	}

	state, err := u.loadState(ctx)
	if err != nil {
		if !apperrors.Is(err, rotationDomain.ErrDbRotationNotConfigured) {
			return err
		}
		state = &rotationDomain.DbRotationState{}
	}
	state.Admin = rotationDomain.AdminConnection{
		Host:              admin.Host,
		Port:              admin.Port,
		Database:          admin.Database,
		User:              admin.User,
		PasswordEncrypted: encrypted,
		SSLMode:           admin.SSLMode,
		ReadOnly:          admin.ReadOnly,
	}

	return u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.store.Save(txCtx, DbRotationStateSetting, dbRotationSchema, state); err != nil {
			return err
		}
		return u.audit.Record(txCtx, auditDomain.Entry{
			Action:       ActionDbCredentialConfigure,
			ResourceType: resourceDbCredential,
			ResourceID:   admin.Database,
			ActorID:      actor,
			Details:      map[string]any{"host": admin.Host, "user": admin.User},
		})
	})
}

// Rotate refreshes the standby slot and makes it active. The slot that was active
// keeps its credential until that credential's own expiry.
func (u *dbRotationUseCase) Rotate(ctx context.Context, actor string) rotationDomain.DbRotationResult {
	var result rotationDomain.DbRotationResult
	if err := u.rotate(ctx, actor, &result); err != nil {
		result.Error = err.Error()
		u.logger.Error("db credential rotation failed", slog.Any("error", err))
		return result
	}
	result.Success = true
	u.logger.Info("db credential rotated",
		slog.String("active_slot", string(result.ActiveSlot)),
		slog.String("username", result.Username),
		slog.Int("rotation_count", result.RotationCount),
	)
	return result
}

func (u *dbRotationUseCase) rotate(ctx context.Context, actor string, result *rotationDomain.DbRotationResult) error {
	state, err := u.loadState(ctx)
	if err != nil {
		return err
	}

	previous := state.ActiveSlot
	target := rotationDomain.SlotA
	if previous != "" {
		target = previous.Other()
	}
	result.PreviousSlot = previous

	standby := state.Slot(target)
	if !standby.Empty() {
		err := u.issuer.Revoke(ctx, *standby.CredentialID, actor)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) &&
			!apperrors.Is(err, credentialDomain.ErrCredentialRevoked) {
			u.logger.Warn("failed to revoke standby slot credential",
				slog.String("slot", string(target)), slog.Any("error", err))
		}
	}

	adminPassword, err := u.cipher.DecryptField(ctx, dekDomain.PurposeCredentials, state.Admin.PasswordEncrypted)
	if err != nil {
		return apperrors.Wrap(err, "failed to decrypt admin password")
	}

	cred, err := u.issuer.Generate(ctx, credentialDomain.Request{
		Host:          state.Admin.Host,
		Port:          state.Admin.Port,
		Database:      state.Admin.Database,
		AdminUser:     state.Admin.User,
		AdminPassword: adminPassword,
		TTLSeconds:    u.ttl,
		ReadOnly:      state.Admin.ReadOnly,
		SSLMode:       state.Admin.SSLMode,
		RequestedBy:   actor,
	})
	if err != nil {
		return err
	}

	encryptedConn, err := u.cipher.EncryptField(ctx, dekDomain.PurposeCredentials, cred.ConnectionString)
	if err != nil {
		return apperrors.Wrap(err, "failed to encrypt connection string")
	}

	now := u.now()
	id := cred.ID
	expiresAt := cred.ExpiresAt
	*standby = rotationDomain.SlotState{CredentialID: &id, Username: cred.Username, ExpiresAt: &expiresAt}
	state.ActiveSlot = target
	state.LastRotatedAt = &now
	state.RotationCount++

	err = u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.store.Save(txCtx, DbRotationStateSetting, dbRotationSchema, state); err != nil {
			return err
		}
		if err := u.store.Save(txCtx, ConnectionStringSetting, connectionStringSchema, &storedConnectionString{
			Encrypted: encryptedConn,
			Slot:      string(target),
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		return u.audit.Record(txCtx, auditDomain.Entry{
			Action:       ActionDbCredentialRotate,
			ResourceType: resourceDbCredential,
			ResourceID:   state.Admin.Database,
			ActorID:      actor,
			Details: map[string]any{
				"activeSlot":    string(target),
				"previousSlot":  string(previous),
				"username":      cred.Username,
				"rotationCount": state.RotationCount,
			},
		})
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to persist rotation state")
	}

	result.ActiveSlot = target
	result.Username = cred.Username
	result.ExpiresAt = cred.ExpiresAt
	result.RotationCount = state.RotationCount
	return nil
}

func (u *dbRotationUseCase) Status(ctx context.Context) (*rotationDomain.DbRotationStatus, error) {
	state, err := u.loadState(ctx)
	if err != nil {
		if apperrors.Is(err, rotationDomain.ErrDbRotationNotConfigured) {
			return &rotationDomain.DbRotationStatus{}, nil
		}
		return nil, err
	}
	return &rotationDomain.DbRotationStatus{
		Configured:    true,
		ActiveSlot:    state.ActiveSlot,
		SlotA:         state.SlotA,
		SlotB:         state.SlotB,
		LastRotatedAt: state.LastRotatedAt,
		RotationCount: state.RotationCount,
	}, nil
}

func (u *dbRotationUseCase) ActiveConnectionString(ctx context.Context) (string, error) {
	var stored storedConnectionString
	if err := u.store.Load(ctx, ConnectionStringSetting, connectionStringSchema, &stored); err != nil {
		if apperrors.Is(err, settings.ErrSettingNotFound) {
			return "", rotationDomain.ErrDbRotationNotConfigured
		}
		return "", err
	}
	return u.cipher.DecryptField(ctx, dekDomain.PurposeCredentials, stored.Encrypted)
}
