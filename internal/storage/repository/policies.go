package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/keyvault/internal/errors"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
)

const policyColumns = `id, name, path_pattern, capabilities, description, created_at, updated_at`

func scanPolicy(s scanner) (*policyDomain.Policy, error) {
	var (
		p    policyDomain.Policy
		caps string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.PathPattern, &caps, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON(caps, &p.Capabilities); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) queryPolicies(ctx context.Context, query string, args ...any) ([]*policyDomain.Policy, error) {
	rows, err := r.querier(ctx).QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, execErr(err, "failed to list policies")
	}
	defer func() { _ = rows.Close() }()

	var out []*policyDomain.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, execErr(err, "failed to scan policy")
		}
		out = append(out, p)
	}
	return out, execErr(rows.Err(), "failed to iterate policies")
}

func (r *Repository) CreatePolicy(ctx context.Context, p *policyDomain.Policy) error {
	caps, err := toJSON(p.Capabilities)
	if err != nil {
		return err
	}
	query := r.rebind(`INSERT INTO vault_policies (` + policyColumns + `) VALUES (` + placeholders(7) + `)`)
	_, err = r.querier(ctx).ExecContext(ctx, query,
		p.ID, p.Name, p.PathPattern, caps, p.Description, p.CreatedAt, p.UpdatedAt,
	)
	return execErr(err, "failed to create policy")
}

func (r *Repository) UpdatePolicy(ctx context.Context, p *policyDomain.Policy) error {
	caps, err := toJSON(p.Capabilities)
	if err != nil {
		return err
	}
	query := r.rebind(`UPDATE vault_policies SET name = ?, path_pattern = ?, capabilities = ?, description = ?,
		updated_at = ? WHERE id = ?`)
	res, err := r.querier(ctx).ExecContext(ctx, query,
		p.Name, p.PathPattern, caps, p.Description, p.UpdatedAt, p.ID,
	)
	if isUniqueViolation(err) {
		return apperrors.Wrap(apperrors.ErrConflict, "policy name exists")
	}
	return affectedOrNotFound(res, err, "failed to update policy")
}

// DeletePolicy also removes its user assignments.
func (r *Repository) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	q := r.querier(ctx)
	if _, err := q.ExecContext(ctx, r.rebind(`DELETE FROM user_policies WHERE policy_id = ?`), id); err != nil {
		return execErr(err, "failed to delete policy assignments")
	}
	res, err := q.ExecContext(ctx, r.rebind(`DELETE FROM vault_policies WHERE id = ?`), id)
	return affectedOrNotFound(res, err, "failed to delete policy")
}

func (r *Repository) GetPolicyByName(ctx context.Context, name string) (*policyDomain.Policy, error) {
	query := r.rebind(`SELECT ` + policyColumns + ` FROM vault_policies WHERE LOWER(name) = LOWER(?)`)
	p, err := scanPolicy(r.querier(ctx).QueryRowContext(ctx, query, name))
	if err != nil {
		return nil, rowErr(err, "failed to get policy")
	}
	return p, nil
}

func (r *Repository) ListPolicies(ctx context.Context) ([]*policyDomain.Policy, error) {
	return r.queryPolicies(ctx, `SELECT `+policyColumns+` FROM vault_policies ORDER BY name`)
}

func (r *Repository) ListPoliciesByNames(ctx context.Context, names []string) ([]*policyDomain.Policy, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = strings.ToLower(n)
	}
	return r.queryPolicies(ctx, `SELECT `+policyColumns+` FROM vault_policies
		WHERE LOWER(name) IN (`+placeholders(len(names))+`) ORDER BY name`, args...)
}

func (r *Repository) AssignPolicy(ctx context.Context, up *policyDomain.UserPolicy) error {
	query := r.rebind(`INSERT INTO user_policies (id, user_id, policy_id, created_at) VALUES (?, ?, ?, ?)`)
	_, err := r.querier(ctx).ExecContext(ctx, query, up.ID, up.UserID, up.PolicyID, up.CreatedAt)
	return execErr(err, "policy already assigned")
}

func (r *Repository) UnassignPolicy(ctx context.Context, userID string, policyID uuid.UUID) error {
	query := r.rebind(`DELETE FROM user_policies WHERE user_id = ? AND policy_id = ?`)
	res, err := r.querier(ctx).ExecContext(ctx, query, userID, policyID)
	return affectedOrNotFound(res, err, "failed to unassign policy")
}

func (r *Repository) ListUserPolicies(ctx context.Context, userID string) ([]*policyDomain.Policy, error) {
	return r.queryPolicies(ctx, `SELECT p.id, p.name, p.path_pattern, p.capabilities, p.description,
		p.created_at, p.updated_at FROM vault_policies p
		JOIN user_policies up ON up.policy_id = p.id
		WHERE up.user_id = ? ORDER BY p.name`, userID)
}

func (r *Repository) CountUserPolicies(ctx context.Context) (int, error) {
	var n int
	err := r.querier(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM user_policies`).Scan(&n)
	return n, execErr(err, "failed to count user policies")
}

const tokenColumns = `id, accessor, token_hash, display_name, policies, token_type, expires_at, num_uses,
	uses_count, parent_id, revoked, revoked_at, created_by, last_used_at, created_at`

func scanToken(s scanner) (*policyDomain.Token, error) {
	var (
		t        policyDomain.Token
		policies string
		parent   uuid.NullUUID
	)
	if err := s.Scan(
		&t.ID, &t.Accessor, &t.TokenHash, &t.DisplayName, &policies, &t.Type, &t.ExpiresAt, &t.NumUses,
		&t.UsesCount, &parent, &t.Revoked, &t.RevokedAt, &t.CreatedBy, &t.LastUsedAt, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	if parent.Valid {
		t.ParentID = &parent.UUID
	}
	if err := fromJSON(policies, &t.Policies); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) CreateToken(ctx context.Context, t *policyDomain.Token) error {
	policies, err := toJSON(t.Policies)
	if err != nil {
		return err
	}
	var parent uuid.NullUUID
	if t.ParentID != nil {
		parent = uuid.NullUUID{UUID: *t.ParentID, Valid: true}
	}
	query := r.rebind(`INSERT INTO vault_tokens (` + tokenColumns + `) VALUES (` + placeholders(15) + `)`)
	_, err = r.querier(ctx).ExecContext(ctx, query,
		t.ID, t.Accessor, t.TokenHash, t.DisplayName, policies, t.Type, t.ExpiresAt, t.NumUses,
		t.UsesCount, parent, t.Revoked, t.RevokedAt, t.CreatedBy, t.LastUsedAt, t.CreatedAt,
	)
	return execErr(err, "failed to create token")
}

func (r *Repository) getToken(ctx context.Context, column string, value any) (*policyDomain.Token, error) {
	query := r.rebind(`SELECT ` + tokenColumns + ` FROM vault_tokens WHERE ` + column + ` = ?`)
	t, err := scanToken(r.querier(ctx).QueryRowContext(ctx, query, value))
	if err != nil {
		return nil, rowErr(err, "failed to get token")
	}
	return t, nil
}

func (r *Repository) GetToken(ctx context.Context, id uuid.UUID) (*policyDomain.Token, error) {
	return r.getToken(ctx, "id", id)
}

func (r *Repository) GetTokenByHash(ctx context.Context, hash string) (*policyDomain.Token, error) {
	return r.getToken(ctx, "token_hash", hash)
}

func (r *Repository) GetTokenByAccessor(ctx context.Context, accessor string) (*policyDomain.Token, error) {
	return r.getToken(ctx, "accessor", accessor)
}

func (r *Repository) queryTokens(ctx context.Context, where string, args ...any) ([]*policyDomain.Token, error) {
	query := r.rebind(`SELECT ` + tokenColumns + ` FROM vault_tokens` + where + ` ORDER BY created_at`)
	rows, err := r.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, execErr(err, "failed to list tokens")
	}
	defer func() { _ = rows.Close() }()

	var out []*policyDomain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, execErr(err, "failed to scan token")
		}
		out = append(out, t)
	}
	return out, execErr(rows.Err(), "failed to iterate tokens")
}

func (r *Repository) ListTokens(ctx context.Context) ([]*policyDomain.Token, error) {
	return r.queryTokens(ctx, "")
}

func (r *Repository) ListInvalidTokens(ctx context.Context, now time.Time) ([]*policyDomain.Token, error) {
	return r.queryTokens(ctx, ` WHERE revoked = ? AND ((expires_at IS NOT NULL AND expires_at <= ?)
		OR (num_uses > 0 AND uses_count >= num_uses))`, false, now)
}

// ConsumeTokenUse increments the use counter only while the token is still valid, so
// concurrent callers can never exceed the use cap.
func (r *Repository) ConsumeTokenUse(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := r.rebind(`UPDATE vault_tokens SET uses_count = uses_count + 1, last_used_at = ?
		WHERE id = ? AND revoked = ? AND (expires_at IS NULL OR expires_at > ?)
		AND (num_uses = 0 OR uses_count < num_uses)`)
	res, err := r.querier(ctx).ExecContext(ctx, query, now, id, false, now)
	if err := affectedOrNotFound(res, err, "failed to consume token use"); err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if _, getErr := r.GetToken(ctx, id); getErr != nil {
			return getErr
		}
		return apperrors.Wrap(apperrors.ErrPreconditionFailed, "token not valid")
	}
	return nil
}

func (r *Repository) RevokeToken(ctx context.Context, id uuid.UUID, revokedAt time.Time) error {
	query := r.rebind(`UPDATE vault_tokens SET revoked = ?, revoked_at = ? WHERE id = ?`)
	res, err := r.querier(ctx).ExecContext(ctx, query, true, revokedAt, id)
	return affectedOrNotFound(res, err, "failed to revoke token")
}
