package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
)

const secretColumns = `id, path, version, ciphertext, iv, metadata, created_by, created_at, updated_at, deleted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSecret(s scanner) (*secretsDomain.Secret, error) {
	var secret secretsDomain.Secret
	err := s.Scan(
		&secret.ID, &secret.Path, &secret.Version, &secret.Ciphertext, &secret.IV, &secret.Metadata,
		&secret.CreatedBy, &secret.CreatedAt, &secret.UpdatedAt, &secret.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &secret, nil
}

func (r *Repository) querySecrets(ctx context.Context, query string, args ...any) ([]*secretsDomain.Secret, error) {
	rows, err := r.querier(ctx).QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, execErr(err, "failed to list secrets")
	}
	defer func() { _ = rows.Close() }()

	var out []*secretsDomain.Secret
	for rows.Next() {
		secret, err := scanSecret(rows)
		if err != nil {
			return nil, execErr(err, "failed to scan secret")
		}
		out = append(out, secret)
	}
	return out, execErr(rows.Err(), "failed to iterate secrets")
}

// CreateSecret fails with ErrConflict when (path, version) already exists.
func (r *Repository) CreateSecret(ctx context.Context, secret *secretsDomain.Secret) error {
	query := r.rebind(`INSERT INTO secrets (` + secretColumns + `) VALUES (` + placeholders(10) + `)`)
	_, err := r.querier(ctx).ExecContext(ctx, query,
		secret.ID, secret.Path, secret.Version, secret.Ciphertext, secret.IV, secret.Metadata,
		secret.CreatedBy, secret.CreatedAt, secret.UpdatedAt, secret.DeletedAt,
	)
	return execErr(err, "failed to create secret")
}

// GetSecret returns the highest live version of path.
func (r *Repository) GetSecret(ctx context.Context, path string) (*secretsDomain.Secret, error) {
	query := r.rebind(`SELECT ` + secretColumns + ` FROM secrets
		WHERE path = ? AND deleted_at IS NULL ORDER BY version DESC LIMIT 1`)
	secret, err := scanSecret(r.querier(ctx).QueryRowContext(ctx, query, path))
	if err != nil {
		return nil, rowErr(err, "failed to get secret")
	}
	return secret, nil
}

func (r *Repository) GetSecretVersion(ctx context.Context, path string, version int) (*secretsDomain.Secret, error) {
	query := r.rebind(`SELECT ` + secretColumns + ` FROM secrets
		WHERE path = ? AND version = ? AND deleted_at IS NULL`)
	secret, err := scanSecret(r.querier(ctx).QueryRowContext(ctx, query, path, version))
	if err != nil {
		return nil, rowErr(err, "failed to get secret version")
	}
	return secret, nil
}

// GetLatestVersion counts tombstoned versions too so version numbers are never reused.
func (r *Repository) GetLatestVersion(ctx context.Context, path string) (int, error) {
	var latest sql.NullInt64
	query := r.rebind(`SELECT MAX(version) FROM secrets WHERE path = ?`)
	if err := r.querier(ctx).QueryRowContext(ctx, query, path).Scan(&latest); err != nil {
		return 0, execErr(err, "failed to get latest secret version")
	}
	return int(latest.Int64), nil
}

func (r *Repository) ListSecrets(ctx context.Context, prefix string) ([]*secretsDomain.Secret, error) {
	return r.querySecrets(ctx, `SELECT `+secretColumns+` FROM secrets s
		WHERE s.path LIKE ? AND s.deleted_at IS NULL
		AND s.version = (SELECT MAX(v.version) FROM secrets v WHERE v.path = s.path AND v.deleted_at IS NULL)
		ORDER BY s.path`, likePrefix(prefix))
}

func (r *Repository) ListSecretVersions(ctx context.Context, path string) ([]*secretsDomain.Secret, error) {
	return r.querySecrets(ctx, `SELECT `+secretColumns+` FROM secrets WHERE path = ? ORDER BY version`, path)
}

func (r *Repository) ListAllSecrets(ctx context.Context) ([]*secretsDomain.Secret, error) {
	return r.querySecrets(ctx, `SELECT `+secretColumns+` FROM secrets ORDER BY path, version`)
}

func (r *Repository) UpdateSecretCiphertext(ctx context.Context, id uuid.UUID, ciphertext, iv []byte) error {
	query := r.rebind(`UPDATE secrets SET ciphertext = ?, iv = ?, updated_at = ? WHERE id = ?`)
	res, err := r.querier(ctx).ExecContext(ctx, query, ciphertext, iv, time.Now().UTC(), id)
	return affectedOrNotFound(res, err, "failed to update secret ciphertext")
}

// DeleteSecret tombstones every live version of path.
func (r *Repository) DeleteSecret(ctx context.Context, path string, deletedAt time.Time) error {
	query := r.rebind(`UPDATE secrets SET deleted_at = ? WHERE path = ? AND deleted_at IS NULL`)
	_, err := r.querier(ctx).ExecContext(ctx, query, deletedAt, path)
	return execErr(err, "failed to delete secret")
}

func (r *Repository) SecretStats(ctx context.Context) (secretsDomain.Stats, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN n > 1 THEN 1 ELSE 0 END), 0), COALESCE(SUM(n), 0)
		FROM (SELECT path, COUNT(*) AS n FROM secrets WHERE deleted_at IS NULL GROUP BY path) per_path`

	var stats secretsDomain.Stats
	err := r.querier(ctx).QueryRowContext(ctx, query).Scan(&stats.Paths, &stats.VersionedPaths, &stats.Versions)
	return stats, execErr(err, "failed to compute secret stats")
}
