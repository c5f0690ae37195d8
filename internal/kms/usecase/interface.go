// Package usecase implements multi-provider auto-unseal on top of the KMS providers.
package usecase

import (
	"context"

	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
)

// ConfigureRequest registers a provider able to unwrap the master key.
type ConfigureRequest struct {
	Provider  string
	KeyName   string
	Priority  int
	MasterKey []byte
	Actor     string
}

// UnsealUseCase keeps the master key sealed until one configured provider unwraps it.
type UnsealUseCase interface {
	Configure(ctx context.Context, req ConfigureRequest) error
	Unseal(ctx context.Context) (*kmsDomain.UnsealResult, error)
	Status(ctx context.Context) (*kmsDomain.UnsealStatus, error)
	Sealed() bool
	// MasterKey returns a copy of the unsealed master key.
	MasterKey() ([]byte, error)
	Seal()
}
