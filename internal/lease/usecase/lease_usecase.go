package usecase

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	"github.com/allisson/keyvault/internal/database"
	apperrors "github.com/allisson/keyvault/internal/errors"
	leaseDomain "github.com/allisson/keyvault/internal/lease/domain"
)

// Audit actions written by the lease manager.
const (
	ActionLeaseCreate     = "lease.create"
	ActionLeaseRenew      = "lease.renew"
	ActionLeaseRevoke     = "lease.revoke"
	ActionLeaseAutoRevoke = "lease.auto-revoke"

	resourceLease = "lease"
	leasePrefix   = "lease-"
	systemActor   = "system"
)

type leaseUseCase struct {
	txManager  database.TxManager
	repo       LeaseRepository
	secrets    SecretReader
	audit      auditUsecase.Recorder
	defaultTTL int
	maxTTL     int
	logger     *slog.Logger
	now        func() time.Time
}

// NewLeaseUseCase creates the lease manager. A zero ttl on Create uses defaultTTL;
// no lease or renewal may run past maxTTL seconds from now.
func NewLeaseUseCase(
	txManager database.TxManager,
	repo LeaseRepository,
	secrets SecretReader,
	audit auditUsecase.Recorder,
	defaultTTL, maxTTL int,
	logger *slog.Logger,
) LeaseUseCase {
	return &leaseUseCase{
		txManager:  txManager,
		repo:       repo,
		secrets:    secrets,
		audit:      audit,
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func newLeaseID(now time.Time) string {
	return leasePrefix + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

func (u *leaseUseCase) checkTTL(ttl int) error {
	if ttl < 1 || (u.maxTTL > 0 && ttl > u.maxTTL) {
		return apperrors.Wrap(leaseDomain.ErrInvalidTTL, strconv.Itoa(ttl))
	}
	return nil
}

func (u *leaseUseCase) Create(
	ctx context.Context,
	secretPath string,
	ttlSeconds int,
	renewable bool,
	actor string,
) (*leaseDomain.Lease, error) {
	if ttlSeconds == 0 {
		ttlSeconds = u.defaultTTL
	}
	if err := u.checkTTL(ttlSeconds); err != nil {
		return nil, err
	}

	secret, err := u.secrets.Get(ctx, secretPath, 0)
	if err != nil {
		return nil, err
	}

	now := u.now()
	lease := &leaseDomain.Lease{
		ID:         newLeaseID(now),
		SecretID:   secret.ID,
		SecretPath: secret.Path,
		TTLSeconds: ttlSeconds,
		Renewable:  renewable,
		ExpiresAt:  now.Add(time.Duration(ttlSeconds) * time.Second),
		CreatedBy:  actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.repo.CreateLease(txCtx, lease); err != nil {
			return err
		}
		return u.audit.Record(txCtx, auditDomain.Entry{
			Action:       ActionLeaseCreate,
			ResourceType: resourceLease,
			ResourceID:   lease.ID,
			ActorID:      actor,
			Details: map[string]any{
				"path":      lease.SecretPath,
				"ttl":       ttlSeconds,
				"renewable": renewable,
			},
		})
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create lease")
	}
	return lease, nil
}

func (u *leaseUseCase) Get(ctx context.Context, id string) (*leaseDomain.Lease, error) {
	lease, err := u.repo.GetLease(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, leaseDomain.ErrLeaseNotFound
		}
		return nil, err
	}
	return lease, nil
}

// Renew extends the lease to now+incrementSeconds. Nothing is written when the lease
// is not renewable, revoked or already expired.
func (u *leaseUseCase) Renew(
	ctx context.Context,
	id string,
	incrementSeconds int,
	actor string,
) (*leaseDomain.Lease, error) {
	if err := u.checkTTL(incrementSeconds); err != nil {
		return nil, err
	}

	var lease *leaseDomain.Lease
	err := u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		lease, err = u.Get(txCtx, id)
		if err != nil {
			return err
		}

		now := u.now()
		switch {
		case lease.Revoked:
			return leaseDomain.ErrLeaseRevoked
		case !lease.Renewable:
			return leaseDomain.ErrLeaseNotRenewable
		case lease.IsExpired(now):
			return leaseDomain.ErrLeaseExpired
		}

		lease.ExpiresAt = now.Add(time.Duration(incrementSeconds) * time.Second)
		lease.TTLSeconds = incrementSeconds
		lease.UpdatedAt = now
		if err := u.repo.UpdateLease(txCtx, lease); err != nil {
			return err
		}
		return u.audit.Record(txCtx, auditDomain.Entry{
			Action:       ActionLeaseRenew,
			ResourceType: resourceLease,
			ResourceID:   lease.ID,
			ActorID:      actor,
			Details:      map[string]any{"increment": incrementSeconds, "expiresAt": lease.ExpiresAt},
		})
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}

func (u *leaseUseCase) Revoke(ctx context.Context, id string, actor string) error {
	return u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		lease, err := u.Get(txCtx, id)
		if err != nil {
			return err
		}
		if lease.Revoked {
			return leaseDomain.ErrLeaseRevoked
		}
		return u.revoke(txCtx, lease, actor, ActionLeaseRevoke)
	})
}

func (u *leaseUseCase) revoke(ctx context.Context, lease *leaseDomain.Lease, actor, action string) error {
	now := u.now()
	lease.Revoked = true
	lease.RevokedAt = &now
	lease.UpdatedAt = now
	if err := u.repo.UpdateLease(ctx, lease); err != nil {
		return err
	}
	return u.audit.Record(ctx, auditDomain.Entry{
		Action:       action,
		ResourceType: resourceLease,
		ResourceID:   lease.ID,
		ActorID:      actor,
		Details:      map[string]any{"path": lease.SecretPath},
	})
}

// GetLeasedSecret rechecks the lease at read time so a lease never yields plaintext
// past its expiry.
func (u *leaseUseCase) GetLeasedSecret(ctx context.Context, id string) (*leaseDomain.LeasedSecret, error) {
	lease, err := u.repo.GetLease(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	now := u.now()
	if !lease.IsActive(now) {
		return nil, nil
	}

	secret, err := u.secrets.Get(ctx, lease.SecretPath, 0)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &leaseDomain.LeasedSecret{
		LeaseID:          lease.ID,
		Path:             secret.Path,
		Version:          secret.Version,
		Value:            secret.Value,
		ExpiresAt:        lease.ExpiresAt,
		RemainingSeconds: lease.RemainingSeconds(now),
	}, nil
}

func (u *leaseUseCase) Active(ctx context.Context) ([]*leaseDomain.Lease, error) {
	return u.repo.ListActiveLeases(ctx, u.now())
}

func (u *leaseUseCase) RevokeExpired(ctx context.Context) (int, error) {
	expired, err := u.repo.ListExpiredLeases(ctx, u.now())
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, lease := range expired {
		err := u.txManager.WithTx(ctx, func(txCtx context.Context) error {
			return u.revoke(txCtx, lease, systemActor, ActionLeaseAutoRevoke)
		})
		if err != nil {
			u.logger.Warn("failed to revoke expired lease",
				slog.String("lease_id", lease.ID), slog.Any("error", err))
			continue
		}
		revoked++
	}
	return revoked, nil
}
