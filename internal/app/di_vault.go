package app

import (
	"fmt"

	complianceUsecase "github.com/allisson/keyvault/internal/compliance/usecase"
	credentialService "github.com/allisson/keyvault/internal/credential/service"
	credentialUsecase "github.com/allisson/keyvault/internal/credential/usecase"
	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	dekUsecase "github.com/allisson/keyvault/internal/dek/usecase"
	drUsecase "github.com/allisson/keyvault/internal/dr/usecase"
	kmsService "github.com/allisson/keyvault/internal/kms/service"
	kmsUsecase "github.com/allisson/keyvault/internal/kms/usecase"
	leaseUsecase "github.com/allisson/keyvault/internal/lease/usecase"
	secretsUsecase "github.com/allisson/keyvault/internal/secrets/usecase"
)

type vault struct {
	kmsProvider       lazy[kmsService.Provider]
	kekHolder         lazy[*secretsUsecase.KekHolder]
	secretUseCase     lazy[secretsUsecase.SecretUseCase]
	dekRegistry       lazy[dekUsecase.DekRegistry]
	encryptionConfigs lazy[dekUsecase.EncryptionConfigUseCase]
	credentialUseCase lazy[credentialUsecase.CredentialUseCase]
	leaseUseCase      lazy[leaseUsecase.LeaseUseCase]
	unsealUseCase     lazy[kmsUsecase.UnsealUseCase]
	drUseCase         lazy[drUsecase.DRUseCase]
	complianceUseCase lazy[complianceUsecase.ComplianceUseCase]
}

// KMSProvider returns the configured KMS provider. A remote provider falls back to local.
func (c *Container) KMSProvider() (kmsService.Provider, error) {
	return c.kmsProvider.get(func() (kmsService.Provider, error) {
		store, err := c.Settings()
		if err != nil {
			return nil, fmt.Errorf("failed to get settings for kms provider: %w", err)
		}
		provider, err := kmsService.NewProvider(kmsService.ProviderConfig{
			Provider:       c.config.KMSProvider,
			KeyURI:         c.config.KMSKeyURI,
			MasterSecret:   c.config.KMSMasterSecret,
			HealthInterval: c.config.KMSHealthCheckInterval,
		}, store, kmsService.NewCloudKeeperOpener(), c.Logger())
		if err != nil {
			return nil, fmt.Errorf("failed to create kms provider: %w", err)
		}
		return provider, nil
	})
}

// KekHolder returns the vault KEK source shared by the secret store and the audit signer.
func (c *Container) KekHolder() (*secretsUsecase.KekHolder, error) {
	return c.kekHolder.get(func() (*secretsUsecase.KekHolder, error) {
		store, err := c.Settings()
		if err != nil {
			return nil, fmt.Errorf("failed to get settings for kek holder: %w", err)
		}
		kms, err := c.KMSProvider()
		if err != nil {
			return nil, err
		}
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for kek holder: %w", err)
		}
		return secretsUsecase.NewKekHolder(store, kms, repo, txManager, c.config.VaultLegacySecret, c.Logger()), nil
	})
}

// SecretUseCase returns the secret store, instrumented with business metrics.
func (c *Container) SecretUseCase() (secretsUsecase.SecretUseCase, error) {
	return c.secretUseCase.get(func() (secretsUsecase.SecretUseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for secret use case: %w", err)
		}
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		keys, err := c.KekHolder()
		if err != nil {
			return nil, err
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for secret use case: %w", err)
		}

		useCase := secretsUsecase.NewSecretUseCase(
			txManager, repo, keys, audit, c.config.VaultDefaultMaxVersions, c.Logger(),
		)
		return secretsUsecase.NewSecretUseCaseWithMetrics(useCase, businessMetrics), nil
	})
}

// DekRegistry returns the per-purpose DEK registry.
func (c *Container) DekRegistry() (dekUsecase.DekRegistry, error) {
	return c.dekRegistry.get(func() (dekUsecase.DekRegistry, error) {
		algorithm, err := cryptoDomain.ParseAlgorithm(c.config.DEKAlgorithm)
		if err != nil {
			return nil, err
		}
		store, err := c.Settings()
		if err != nil {
			return nil, fmt.Errorf("failed to get settings for dek registry: %w", err)
		}
		kms, err := c.KMSProvider()
		if err != nil {
			return nil, err
		}
		return dekUsecase.NewDekRegistry(store, kms, cryptoService.NewAEADManager(), algorithm, c.Logger()), nil
	})
}

// EncryptionConfigUseCase returns the per-table encryption config manager.
func (c *Container) EncryptionConfigUseCase() (dekUsecase.EncryptionConfigUseCase, error) {
	return c.encryptionConfigs.get(func() (dekUsecase.EncryptionConfigUseCase, error) {
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		return dekUsecase.NewEncryptionConfigUseCase(repo), nil
	})
}

// CredentialUseCase returns the dynamic database credential provider.
func (c *Container) CredentialUseCase() (credentialUsecase.CredentialUseCase, error) {
	return c.credentialUseCase.get(func() (credentialUsecase.CredentialUseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for credential use case: %w", err)
		}
		repo, err := c.Store()
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
		logger := c.Logger()
		roles := credentialService.NewPostgresRoleManager(logger)
		return credentialUsecase.NewCredentialUseCase(txManager, repo, roles, cipher, audit, logger), nil
	})
}

// LeaseUseCase returns the lease manager.
func (c *Container) LeaseUseCase() (leaseUsecase.LeaseUseCase, error) {
	return c.leaseUseCase.get(func() (leaseUsecase.LeaseUseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for lease use case: %w", err)
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
		return leaseUsecase.NewLeaseUseCase(
			txManager, repo, secrets, audit, c.config.LeaseDefaultTTL, c.config.LeaseMaxTTL, c.Logger(),
		), nil
	})
}

// UnsealUseCase returns auto-unseal over the configured KMS provider.
func (c *Container) UnsealUseCase() (kmsUsecase.UnsealUseCase, error) {
	return c.unsealUseCase.get(func() (kmsUsecase.UnsealUseCase, error) {
		kms, err := c.KMSProvider()
		if err != nil {
			return nil, err
		}
		store, err := c.Settings()
		if err != nil {
			return nil, fmt.Errorf("failed to get settings for unseal use case: %w", err)
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		events, err := c.EventPublisher()
		if err != nil {
			return nil, err
		}
		return kmsUsecase.NewUnsealUseCase([]kmsService.Provider{kms}, store, audit, events, c.Logger()), nil
	})
}

// DRUseCase returns backup and restore.
func (c *Container) DRUseCase() (drUsecase.DRUseCase, error) {
	return c.drUseCase.get(func() (drUsecase.DRUseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for dr use case: %w", err)
		}
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		unseal, err := c.UnsealUseCase()
		if err != nil {
			return nil, err
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		events, err := c.EventPublisher()
		if err != nil {
			return nil, err
		}
		return drUsecase.NewDRUseCase(txManager, repo, repo, repo, repo, unseal, audit, events, c.Logger()), nil
	})
}

// ComplianceUseCase returns the compliance scorer.
func (c *Container) ComplianceUseCase() (complianceUsecase.ComplianceUseCase, error) {
	return c.complianceUseCase.get(func() (complianceUsecase.ComplianceUseCase, error) {
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		store, err := c.Settings()
		if err != nil {
			return nil, fmt.Errorf("failed to get settings for compliance use case: %w", err)
		}
		kms, err := c.KMSProvider()
		if err != nil {
			return nil, err
		}
		unseal, err := c.UnsealUseCase()
		if err != nil {
			return nil, err
		}
		return complianceUsecase.NewComplianceUseCase(repo, store, kms, unseal, c.Logger()), nil
	})
}
