package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

type encryptionConfigUseCase struct {
	repo EncryptionConfigRepository
}

func NewEncryptionConfigUseCase(repo EncryptionConfigRepository) EncryptionConfigUseCase {
	return &encryptionConfigUseCase{repo: repo}
}

// Save creates or replaces the config of cfg.TableName. Table and field names must
// pass the SQL identifier allow-list because sweeps splice them into statements.
func (u *encryptionConfigUseCase) Save(
	ctx context.Context,
	cfg *dekDomain.EncryptionConfig,
) (*dekDomain.EncryptionConfig, error) {
	err := validation.ValidateStruct(cfg,
		validation.Field(&cfg.TableName, validation.Required, customValidation.SQLIdentifier),
		validation.Field(&cfg.DekPurpose, validation.Required),
		validation.Field(&cfg.EncryptedFields, validation.Required,
			validation.Each(validation.Required, customValidation.SQLIdentifier)),
	)
	if err != nil {
		return nil, customValidation.WrapValidationError(err)
	}

	now := time.Now().UTC()
	existing, err := u.repo.GetEncryptionConfig(ctx, cfg.TableName)
	switch {
	case err == nil:
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
	case apperrors.Is(err, apperrors.ErrNotFound):
		cfg.ID = uuid.Must(uuid.NewV7())
		cfg.CreatedAt = now
	default:
		return nil, err
	}
	cfg.UpdatedAt = now

	if err := u.repo.SaveEncryptionConfig(ctx, cfg); err != nil {
		return nil, apperrors.Wrap(err, "failed to save encryption config")
	}
	return cfg, nil
}

func (u *encryptionConfigUseCase) Get(ctx context.Context, tableName string) (*dekDomain.EncryptionConfig, error) {
	cfg, err := u.repo.GetEncryptionConfig(ctx, tableName)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, dekDomain.ErrEncryptionConfigNotFound
		}
		return nil, err
	}
	return cfg, nil
}

func (u *encryptionConfigUseCase) List(ctx context.Context) ([]*dekDomain.EncryptionConfig, error) {
	return u.repo.ListEncryptionConfigs(ctx)
}

func (u *encryptionConfigUseCase) Delete(ctx context.Context, tableName string) error {
	if err := u.repo.DeleteEncryptionConfig(ctx, tableName); err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return dekDomain.ErrEncryptionConfigNotFound
		}
		return err
	}
	return nil
}
