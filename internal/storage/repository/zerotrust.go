package repository

import (
	"context"
	"time"

	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

const ztPolicyColumns = `id, action, required_auth_level, max_allowed_risk, require_trusted_device,
	require_fresh_session, block_anomaly, require_geo_fence, allowed_countries, block_vpn_tor,
	allow_break_glass_override, active, updated_by, created_at, updated_at`

func scanZTPolicy(s scanner) (*ztDomain.Policy, error) {
	var (
		p         ztDomain.Policy
		auth      int
		risk      int
		countries string
	)
	if err := s.Scan(
		&p.ID, &p.Action, &auth, &risk, &p.RequireTrustedDevice, &p.RequireFreshSession, &p.BlockAnomaly,
		&p.RequireGeoFence, &countries, &p.BlockVpnTor, &p.AllowBreakGlassOverride, &p.Active, &p.UpdatedBy,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.RequiredAuthLevel = ztDomain.AuthLevel(auth)
	p.MaxAllowedRisk = ztDomain.RiskLevel(risk)
	if err := fromJSON(countries, &p.AllowedCountries); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetZTPolicy(ctx context.Context, action ztDomain.Action) (*ztDomain.Policy, error) {
	query := r.rebind(`SELECT ` + ztPolicyColumns + ` FROM zero_trust_policies WHERE action = ?`)
	p, err := scanZTPolicy(r.querier(ctx).QueryRowContext(ctx, query, string(action)))
	if err != nil {
		return nil, rowErr(err, "failed to get zero-trust policy")
	}
	return p, nil
}

func (r *Repository) ListZTPolicies(ctx context.Context) ([]*ztDomain.Policy, error) {
	rows, err := r.querier(ctx).QueryContext(ctx,
		`SELECT `+ztPolicyColumns+` FROM zero_trust_policies ORDER BY action`)
	if err != nil {
		return nil, execErr(err, "failed to list zero-trust policies")
	}
	defer func() { _ = rows.Close() }()

	var out []*ztDomain.Policy
	for rows.Next() {
		p, err := scanZTPolicy(rows)
		if err != nil {
			return nil, execErr(err, "failed to scan zero-trust policy")
		}
		out = append(out, p)
	}
	return out, execErr(rows.Err(), "failed to iterate zero-trust policies")
}

func (r *Repository) UpsertZTPolicy(ctx context.Context, p *ztDomain.Policy) error {
	countries, err := toJSON(p.AllowedCountries)
	if err != nil {
		return err
	}
	query := r.rebind(r.upsert(
		"zero_trust_policies",
		[]string{"action"},
		[]string{
			"id", "action", "required_auth_level", "max_allowed_risk", "require_trusted_device",
			"require_fresh_session", "block_anomaly", "require_geo_fence", "allowed_countries", "block_vpn_tor",
			"allow_break_glass_override", "active", "updated_by", "created_at", "updated_at",
		},
		[]string{
			"required_auth_level", "max_allowed_risk", "require_trusted_device", "require_fresh_session",
			"block_anomaly", "require_geo_fence", "allowed_countries", "block_vpn_tor",
			"allow_break_glass_override", "active", "updated_by", "updated_at",
		},
	))
	_, err = r.querier(ctx).ExecContext(ctx, query,
		p.ID, string(p.Action), int(p.RequiredAuthLevel), int(p.MaxAllowedRisk), p.RequireTrustedDevice,
		p.RequireFreshSession, p.BlockAnomaly, p.RequireGeoFence, countries, p.BlockVpnTor,
		p.AllowBreakGlassOverride, p.Active, p.UpdatedBy, p.CreatedAt, p.UpdatedAt,
	)
	return execErr(err, "failed to save zero-trust policy")
}

const deviceRiskColumns = `id, user_id, device_id, risk_level, risk_score, factors, is_trusted, ip_address,
	country, user_agent, created_at, updated_at`

func scanDeviceRisk(s scanner) (*ztDomain.DeviceRisk, error) {
	var (
		d       ztDomain.DeviceRisk
		level   int
		factors string
	)
	if err := s.Scan(
		&d.ID, &d.UserID, &d.DeviceID, &level, &d.RiskScore, &factors, &d.IsTrusted, &d.IPAddress,
		&d.Country, &d.UserAgent, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.RiskLevel = ztDomain.RiskLevel(level)
	if err := fromJSON(factors, &d.Factors); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) GetDeviceRisk(ctx context.Context, userID, deviceID string) (*ztDomain.DeviceRisk, error) {
	query := r.rebind(`SELECT ` + deviceRiskColumns + ` FROM device_risks WHERE user_id = ? AND device_id = ?`)
	d, err := scanDeviceRisk(r.querier(ctx).QueryRowContext(ctx, query, userID, deviceID))
	if err != nil {
		return nil, rowErr(err, "failed to get device risk")
	}
	return d, nil
}

// UpsertDeviceRisk keeps the original id and created_at of an existing (user, device) row.
func (r *Repository) UpsertDeviceRisk(ctx context.Context, d *ztDomain.DeviceRisk) error {
	factors, err := toJSON(d.Factors)
	if err != nil {
		return err
	}
	query := r.rebind(r.upsert(
		"device_risks",
		[]string{"user_id", "device_id"},
		[]string{
			"id", "user_id", "device_id", "risk_level", "risk_score", "factors", "is_trusted", "ip_address",
			"country", "user_agent", "created_at", "updated_at",
		},
		[]string{
			"risk_level", "risk_score", "factors", "is_trusted", "ip_address", "country", "user_agent", "updated_at",
		},
	))
	_, err = r.querier(ctx).ExecContext(ctx, query,
		d.ID, d.UserID, d.DeviceID, int(d.RiskLevel), d.RiskScore, factors, d.IsTrusted, d.IPAddress,
		d.Country, d.UserAgent, d.CreatedAt, d.UpdatedAt,
	)
	return execErr(err, "failed to save device risk")
}

func (r *Repository) ListDeviceRisks(ctx context.Context, userID string) ([]*ztDomain.DeviceRisk, error) {
	query := r.rebind(`SELECT ` + deviceRiskColumns + ` FROM device_risks WHERE user_id = ? ORDER BY updated_at DESC`)
	rows, err := r.querier(ctx).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, execErr(err, "failed to list device risks")
	}
	defer func() { _ = rows.Close() }()

	var out []*ztDomain.DeviceRisk
	for rows.Next() {
		d, err := scanDeviceRisk(rows)
		if err != nil {
			return nil, execErr(err, "failed to scan device risk")
		}
		out = append(out, d)
	}
	return out, execErr(rows.Err(), "failed to iterate device risks")
}

const sessionColumns = `id, user_id, ip_address, device_fingerprint, country, user_agent, created_at,
	last_activity_at, expires_at, revoked, revoked_at, revoke_reason`

func scanSession(s scanner) (*ztDomain.Session, error) {
	var sess ztDomain.Session
	if err := s.Scan(
		&sess.ID, &sess.UserID, &sess.IPAddress, &sess.DeviceFingerprint, &sess.Country, &sess.UserAgent,
		&sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt, &sess.Revoked, &sess.RevokedAt, &sess.RevokeReason,
	); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (r *Repository) CreateSession(ctx context.Context, s *ztDomain.Session) error {
	query := r.rebind(`INSERT INTO adaptive_sessions (` + sessionColumns + `) VALUES (` + placeholders(12) + `)`)
	_, err := r.querier(ctx).ExecContext(ctx, query,
		s.ID, s.UserID, s.IPAddress, s.DeviceFingerprint, s.Country, s.UserAgent,
		s.CreatedAt, s.LastActivityAt, s.ExpiresAt, s.Revoked, s.RevokedAt, s.RevokeReason,
	)
	return execErr(err, "failed to create session")
}

func (r *Repository) GetSession(ctx context.Context, id string) (*ztDomain.Session, error) {
	query := r.rebind(`SELECT ` + sessionColumns + ` FROM adaptive_sessions WHERE id = ?`)
	sess, err := scanSession(r.querier(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, rowErr(err, "failed to get session")
	}
	return sess, nil
}

func (r *Repository) UpdateSession(ctx context.Context, s *ztDomain.Session) error {
	query := r.rebind(`UPDATE adaptive_sessions SET ip_address = ?, device_fingerprint = ?, country = ?,
		user_agent = ?, last_activity_at = ?, expires_at = ?, revoked = ?, revoked_at = ?, revoke_reason = ?
		WHERE id = ?`)
	res, err := r.querier(ctx).ExecContext(ctx, query,
		s.IPAddress, s.DeviceFingerprint, s.Country, s.UserAgent, s.LastActivityAt, s.ExpiresAt,
		s.Revoked, s.RevokedAt, s.RevokeReason, s.ID,
	)
	return affectedOrNotFound(res, err, "failed to update session")
}

// ListActiveSessions returns the user's active sessions oldest first.
func (r *Repository) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]*ztDomain.Session, error) {
	query := r.rebind(`SELECT ` + sessionColumns + ` FROM adaptive_sessions
		WHERE user_id = ? AND revoked = ? AND expires_at > ? ORDER BY created_at`)
	return r.listSessions(ctx, query, userID, false, now)
}

// ListAllActiveSessions returns every user's active sessions oldest first.
func (r *Repository) ListAllActiveSessions(ctx context.Context, now time.Time) ([]*ztDomain.Session, error) {
	query := r.rebind(`SELECT ` + sessionColumns + ` FROM adaptive_sessions
		WHERE revoked = ? AND expires_at > ? ORDER BY created_at`)
	return r.listSessions(ctx, query, false, now)
}

func (r *Repository) listSessions(ctx context.Context, query string, args ...any) ([]*ztDomain.Session, error) {
	rows, err := r.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, execErr(err, "failed to list sessions")
	}
	defer func() { _ = rows.Close() }()

	var out []*ztDomain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, execErr(err, "failed to scan session")
		}
		out = append(out, sess)
	}
	return out, execErr(rows.Err(), "failed to iterate sessions")
}
