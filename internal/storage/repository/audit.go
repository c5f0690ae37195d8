package repository

import (
	"context"
	"strings"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
)

const auditColumns = `id, action, resource_type, resource_id, actor_id, details, signature, created_at`

func (r *Repository) CreateAuditLog(ctx context.Context, log *auditDomain.AuditLog) error {
	details, err := toJSON(log.Details)
	if err != nil {
		return err
	}
	query := r.rebind(`INSERT INTO audit_logs (` + auditColumns + `) VALUES (` + placeholders(8) + `)`)
	_, err = r.querier(ctx).ExecContext(ctx, query,
		log.ID, log.Action, log.ResourceType, log.ResourceID, log.ActorID, details, log.Signature, log.CreatedAt,
	)
	return execErr(err, "failed to create audit log")
}

func auditWhere(f auditDomain.Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if f.ResourceID != "" {
		conds = append(conds, "resource_id = ?")
		args = append(args, f.ResourceID)
	}
	if f.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *f.Since)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func limitOffset(limit, offset int, args []any) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return "", args
	}
	if limit <= 0 {
		// Both dialects need a LIMIT before OFFSET.
		limit = 1 << 31
	}
	return " LIMIT ? OFFSET ?", append(args, limit, offset)
}

// ListAuditLogs returns matching entries newest first.
func (r *Repository) ListAuditLogs(ctx context.Context, f auditDomain.Filter) ([]*auditDomain.AuditLog, error) {
	where, args := auditWhere(f)
	page, args := limitOffset(f.Limit, f.Offset, args)
	query := r.rebind(`SELECT ` + auditColumns + ` FROM audit_logs` + where + ` ORDER BY created_at DESC` + page)

	rows, err := r.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, execErr(err, "failed to list audit logs")
	}
	defer func() { _ = rows.Close() }()

	var out []*auditDomain.AuditLog
	for rows.Next() {
		var (
			log     auditDomain.AuditLog
			details string
		)
		if err := rows.Scan(
			&log.ID, &log.Action, &log.ResourceType, &log.ResourceID, &log.ActorID,
			&details, &log.Signature, &log.CreatedAt,
		); err != nil {
			return nil, execErr(err, "failed to scan audit log")
		}
		if err := fromJSON(details, &log.Details); err != nil {
			return nil, err
		}
		out = append(out, &log)
	}
	return out, execErr(rows.Err(), "failed to iterate audit logs")
}

func (r *Repository) CountAuditLogs(ctx context.Context, f auditDomain.Filter) (int, error) {
	where, args := auditWhere(f)
	var n int
	err := r.querier(ctx).QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM audit_logs`+where), args...).Scan(&n)
	return n, execErr(err, "failed to count audit logs")
}

const eventColumns = `id, event_type, severity, source, action, user_id, ip_address, country,
	resource_type, resource_id, outcome, reason, extensions, occurred_at`

func (r *Repository) CreateSecurityEvent(ctx context.Context, e *auditDomain.SecurityEvent) error {
	ext, err := toJSON(e.Extensions)
	if err != nil {
		return err
	}
	query := r.rebind(`INSERT INTO security_events (` + eventColumns + `) VALUES (` + placeholders(14) + `)`)
	_, err = r.querier(ctx).ExecContext(ctx, query,
		e.ID, e.EventType, int(e.Severity), e.Source, e.Action, e.UserID, e.IPAddress, e.Country,
		e.ResourceType, e.ResourceID, e.Outcome, e.Reason, ext, e.Timestamp,
	)
	return execErr(err, "failed to create security event")
}

func eventWhere(f auditDomain.EventFilter) (string, []any) {
	var conds []string
	var args []any
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, f.EventType)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, f.Since)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListSecurityEvents returns matching events newest first.
func (r *Repository) ListSecurityEvents(
	ctx context.Context,
	f auditDomain.EventFilter,
) ([]*auditDomain.SecurityEvent, error) {
	where, args := eventWhere(f)
	page, args := limitOffset(f.Limit, 0, args)
	query := r.rebind(`SELECT ` + eventColumns + ` FROM security_events` + where + ` ORDER BY occurred_at DESC` + page)

	rows, err := r.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, execErr(err, "failed to list security events")
	}
	defer func() { _ = rows.Close() }()

	var out []*auditDomain.SecurityEvent
	for rows.Next() {
		var (
			e        auditDomain.SecurityEvent
			severity int
			ext      string
		)
		if err := rows.Scan(
			&e.ID, &e.EventType, &severity, &e.Source, &e.Action, &e.UserID, &e.IPAddress, &e.Country,
			&e.ResourceType, &e.ResourceID, &e.Outcome, &e.Reason, &ext, &e.Timestamp,
		); err != nil {
			return nil, execErr(err, "failed to scan security event")
		}
		e.Severity = auditDomain.Severity(severity)
		if err := fromJSON(ext, &e.Extensions); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, execErr(rows.Err(), "failed to iterate security events")
}

func (r *Repository) CountSecurityEvents(ctx context.Context, f auditDomain.EventFilter) (int, error) {
	where, args := eventWhere(f)
	var n int
	err := r.querier(ctx).QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM security_events`+where), args...).Scan(&n)
	return n, execErr(err, "failed to count security events")
}
