package app

import (
	"fmt"

	rotationUsecase "github.com/allisson/keyvault/internal/rotation/usecase"
)

type rotation struct {
	secretRotation lazy[rotationUsecase.SecretRotationUseCase]
	dekRotation    lazy[rotationUsecase.DekRotationUseCase]
	dbRotation     lazy[rotationUsecase.DbCredentialRotationUseCase]
}

// SecretRotationUseCase returns the scheduled secret rotation engine.
func (c *Container) SecretRotationUseCase() (rotationUsecase.SecretRotationUseCase, error) {
	return c.secretRotation.get(func() (rotationUsecase.SecretRotationUseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for secret rotation: %w", err)
		}
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		secrets, err := c.SecretUseCase()
		if err != nil {
			return nil, err
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		return rotationUsecase.NewSecretRotationUseCase(txManager, repo, secrets, audit, c.Logger()), nil
	})
}

// DekRotationUseCase returns DEK rotation and field re-encryption.
func (c *Container) DekRotationUseCase() (rotationUsecase.DekRotationUseCase, error) {
	return c.dekRotation.get(func() (rotationUsecase.DekRotationUseCase, error) {
		registry, err := c.DekRegistry()
		if err != nil {
			return nil, err
		}
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		return rotationUsecase.NewDekRotationUseCase(registry, repo, repo, audit, c.Logger()), nil
	})
}

// DbCredentialRotationUseCase returns the two-slot rotation of the vault's own database login.
func (c *Container) DbCredentialRotationUseCase() (rotationUsecase.DbCredentialRotationUseCase, error) {
	return c.dbRotation.get(func() (rotationUsecase.DbCredentialRotationUseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for db credential rotation: %w", err)
		}
		store, err := c.Settings()
		if err != nil {
			return nil, fmt.Errorf("failed to get settings for db credential rotation: %w", err)
		}
		credentials, err := c.CredentialUseCase()
		if err != nil {
			return nil, err
		}
		cipher, err := c.DekRegistry()
		if err != nil {
			return nil, err
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		return rotationUsecase.NewDbCredentialRotationUseCase(
			txManager, store, credentials, cipher, audit, c.config.DBRotationCredentialTTL, c.Logger(),
		), nil
	})
}
