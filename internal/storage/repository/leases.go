package repository

import (
	"context"
	"time"

	leaseDomain "github.com/allisson/keyvault/internal/lease/domain"
)

const leaseColumns = `id, secret_id, secret_path, ttl_seconds, renewable, expires_at, revoked, revoked_at,
	created_by, created_at, updated_at`

func scanLease(s scanner) (*leaseDomain.Lease, error) {
	var l leaseDomain.Lease
	if err := s.Scan(
		&l.ID, &l.SecretID, &l.SecretPath, &l.TTLSeconds, &l.Renewable, &l.ExpiresAt, &l.Revoked, &l.RevokedAt,
		&l.CreatedBy, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *Repository) CreateLease(ctx context.Context, l *leaseDomain.Lease) error {
	query := r.rebind(`INSERT INTO leases (` + leaseColumns + `) VALUES (` + placeholders(11) + `)`)
	_, err := r.querier(ctx).ExecContext(ctx, query,
		l.ID, l.SecretID, l.SecretPath, l.TTLSeconds, l.Renewable, l.ExpiresAt, l.Revoked, l.RevokedAt,
		l.CreatedBy, l.CreatedAt, l.UpdatedAt,
	)
	return execErr(err, "failed to create lease")
}

func (r *Repository) GetLease(ctx context.Context, id string) (*leaseDomain.Lease, error) {
	query := r.rebind(`SELECT ` + leaseColumns + ` FROM leases WHERE id = ?`)
	l, err := scanLease(r.querier(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, rowErr(err, "failed to get lease")
	}
	return l, nil
}

func (r *Repository) UpdateLease(ctx context.Context, l *leaseDomain.Lease) error {
	query := r.rebind(`UPDATE leases SET ttl_seconds = ?, renewable = ?, expires_at = ?, revoked = ?,
		revoked_at = ?, updated_at = ? WHERE id = ?`)
	res, err := r.querier(ctx).ExecContext(ctx, query,
		l.TTLSeconds, l.Renewable, l.ExpiresAt, l.Revoked, l.RevokedAt, l.UpdatedAt, l.ID,
	)
	return affectedOrNotFound(res, err, "failed to update lease")
}

func (r *Repository) queryLeases(ctx context.Context, where string, args ...any) ([]*leaseDomain.Lease, error) {
	query := r.rebind(`SELECT ` + leaseColumns + ` FROM leases` + where + ` ORDER BY expires_at`)
	rows, err := r.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, execErr(err, "failed to list leases")
	}
	defer func() { _ = rows.Close() }()

	var out []*leaseDomain.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, execErr(err, "failed to scan lease")
		}
		out = append(out, l)
	}
	return out, execErr(rows.Err(), "failed to iterate leases")
}

func (r *Repository) ListActiveLeases(ctx context.Context, now time.Time) ([]*leaseDomain.Lease, error) {
	return r.queryLeases(ctx, " WHERE revoked = ? AND expires_at > ?", false, now)
}

func (r *Repository) ListExpiredLeases(ctx context.Context, now time.Time) ([]*leaseDomain.Lease, error) {
	return r.queryLeases(ctx, " WHERE revoked = ? AND expires_at <= ?", false, now)
}
