package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	credentialDomain "github.com/allisson/keyvault/internal/credential/domain"
)

const credentialColumns = `id, username, host, port, database_name, admin_user, admin_password_encrypted,
	granted_tables, read_only, ssl_mode, expires_at, revoked, revoked_at, created_by, created_at`

func scanCredential(s scanner) (*credentialDomain.Credential, error) {
	var (
		c      credentialDomain.Credential
		tables string
	)
	if err := s.Scan(
		&c.ID, &c.Username, &c.Host, &c.Port, &c.Database, &c.AdminUser, &c.AdminPasswordEncrypted,
		&tables, &c.ReadOnly, &c.SSLMode, &c.ExpiresAt, &c.Revoked, &c.RevokedAt, &c.CreatedBy, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := fromJSON(tables, &c.GrantedTables); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) CreateCredential(ctx context.Context, c *credentialDomain.Credential) error {
	tables, err := toJSON(c.GrantedTables)
	if err != nil {
		return err
	}
	query := r.rebind(`INSERT INTO dynamic_credentials (` + credentialColumns + `) VALUES (` + placeholders(15) + `)`)
	_, err = r.querier(ctx).ExecContext(ctx, query,
		c.ID, c.Username, c.Host, c.Port, c.Database, c.AdminUser, c.AdminPasswordEncrypted,
		tables, c.ReadOnly, c.SSLMode, c.ExpiresAt, c.Revoked, c.RevokedAt, c.CreatedBy, c.CreatedAt,
	)
	return execErr(err, "failed to create credential")
}

func (r *Repository) GetCredential(ctx context.Context, id uuid.UUID) (*credentialDomain.Credential, error) {
	query := r.rebind(`SELECT ` + credentialColumns + ` FROM dynamic_credentials WHERE id = ?`)
	c, err := scanCredential(r.querier(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, rowErr(err, "failed to get credential")
	}
	return c, nil
}

func (r *Repository) queryCredentials(ctx context.Context, where string, args ...any) ([]*credentialDomain.Credential, error) {
	query := r.rebind(`SELECT ` + credentialColumns + ` FROM dynamic_credentials` + where + ` ORDER BY created_at`)
	rows, err := r.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, execErr(err, "failed to list credentials")
	}
	defer func() { _ = rows.Close() }()

	var out []*credentialDomain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, execErr(err, "failed to scan credential")
		}
		out = append(out, c)
	}
	return out, execErr(rows.Err(), "failed to iterate credentials")
}

func (r *Repository) ListCredentials(ctx context.Context, includeRevoked bool) ([]*credentialDomain.Credential, error) {
	if includeRevoked {
		return r.queryCredentials(ctx, "")
	}
	return r.queryCredentials(ctx, " WHERE revoked = ?", false)
}

func (r *Repository) ListExpiredCredentials(ctx context.Context, now time.Time) ([]*credentialDomain.Credential, error) {
	return r.queryCredentials(ctx, " WHERE revoked = ? AND expires_at <= ?", false, now)
}

func (r *Repository) RevokeCredential(ctx context.Context, id uuid.UUID, revokedAt time.Time) error {
	query := r.rebind(`UPDATE dynamic_credentials SET revoked = ?, revoked_at = ? WHERE id = ?`)
	res, err := r.querier(ctx).ExecContext(ctx, query, true, revokedAt, id)
	return affectedOrNotFound(res, err, "failed to revoke credential")
}
