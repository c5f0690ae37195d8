// Package usecase implements time-bound leases over secrets.
package usecase

import (
	"context"
	"time"

	leaseDomain "github.com/allisson/keyvault/internal/lease/domain"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
)

// LeaseRepository persists leases.
type LeaseRepository interface {
	CreateLease(ctx context.Context, lease *leaseDomain.Lease) error
	GetLease(ctx context.Context, id string) (*leaseDomain.Lease, error)
	UpdateLease(ctx context.Context, lease *leaseDomain.Lease) error
	ListActiveLeases(ctx context.Context, now time.Time) ([]*leaseDomain.Lease, error)
	// ListExpiredLeases returns unrevoked leases whose expiry is at or before now.
	ListExpiredLeases(ctx context.Context, now time.Time) ([]*leaseDomain.Lease, error)
}

// SecretReader reads secrets through the secret store.
type SecretReader interface {
	Get(ctx context.Context, path string, version int) (*secretsDomain.SecretValue, error)
}

// LeaseUseCase is the lease manager.
type LeaseUseCase interface {
	Create(ctx context.Context, secretPath string, ttlSeconds int, renewable bool, actor string) (*leaseDomain.Lease, error)
	Renew(ctx context.Context, id string, incrementSeconds int, actor string) (*leaseDomain.Lease, error)
	Revoke(ctx context.Context, id string, actor string) error
	Get(ctx context.Context, id string) (*leaseDomain.Lease, error)
	// GetLeasedSecret returns nil, nil once the lease is expired or revoked.
	GetLeasedSecret(ctx context.Context, id string) (*leaseDomain.LeasedSecret, error)
	Active(ctx context.Context) ([]*leaseDomain.Lease, error)
	// RevokeExpired marks expired leases revoked and audits each one.
	RevokeExpired(ctx context.Context) (int, error)
}
