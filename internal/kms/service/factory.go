package service

import (
	"log/slog"
	"time"

	apperrors "github.com/allisson/keyvault/internal/errors"
	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
	"github.com/allisson/keyvault/internal/settings"
)

// ProviderConfig selects and configures the KMS provider.
type ProviderConfig struct {
	Provider       string
	KeyURI         string
	MasterSecret   string
	HealthInterval time.Duration
}

// NewProvider builds the configured provider. The remote provider is always wrapped in a
// FallbackProvider backed by the local provider.
func NewProvider(
	cfg ProviderConfig,
	store *settings.Store,
	opener KeeperOpener,
	logger *slog.Logger,
) (Provider, error) {
	local, err := NewLocalProvider(store, cfg.MasterSecret)
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case kmsDomain.ProviderLocal, "":
		return local, nil
	case kmsDomain.ProviderRemote:
		remote, err := NewRemoteProvider(opener, RemoteConfig{
			KeyURI:         cfg.KeyURI,
			FallbackSecret: cfg.MasterSecret,
		}, store, logger)
		if err != nil {
			return nil, err
		}
		return NewFallbackProvider(remote, local, cfg.HealthInterval, logger), nil
	default:
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "unknown kms provider "+cfg.Provider)
	}
}
