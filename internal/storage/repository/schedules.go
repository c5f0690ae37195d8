package repository

import (
	"context"

	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
)

const scheduleColumns = `id, secret_path, interval_days, grace_period_hours, automatic, strategy, callback_url,
	last_rotated_at, next_rotation_at, active, created_by, created_at, updated_at`

func scanSchedule(s scanner) (*rotationDomain.Schedule, error) {
	var sc rotationDomain.Schedule
	if err := s.Scan(
		&sc.ID, &sc.SecretPath, &sc.IntervalDays, &sc.GracePeriodHours, &sc.Automatic, &sc.Strategy,
		&sc.CallbackURL, &sc.LastRotatedAt, &sc.NextRotationAt, &sc.Active, &sc.CreatedBy, &sc.CreatedAt,
		&sc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (r *Repository) CreateSchedule(ctx context.Context, sc *rotationDomain.Schedule) error {
	query := r.rebind(`INSERT INTO rotation_schedules (` + scheduleColumns + `) VALUES (` + placeholders(13) + `)`)
	_, err := r.querier(ctx).ExecContext(ctx, query,
		sc.ID, sc.SecretPath, sc.IntervalDays, sc.GracePeriodHours, sc.Automatic, sc.Strategy, sc.CallbackURL,
		sc.LastRotatedAt, sc.NextRotationAt, sc.Active, sc.CreatedBy, sc.CreatedAt, sc.UpdatedAt,
	)
	return execErr(err, "failed to create rotation schedule")
}

func (r *Repository) UpdateSchedule(ctx context.Context, sc *rotationDomain.Schedule) error {
	query := r.rebind(`UPDATE rotation_schedules SET interval_days = ?, grace_period_hours = ?, automatic = ?,
		strategy = ?, callback_url = ?, last_rotated_at = ?, next_rotation_at = ?, active = ?, updated_at = ?
		WHERE secret_path = ?`)
	res, err := r.querier(ctx).ExecContext(ctx, query,
		sc.IntervalDays, sc.GracePeriodHours, sc.Automatic, sc.Strategy, sc.CallbackURL, sc.LastRotatedAt,
		sc.NextRotationAt, sc.Active, sc.UpdatedAt, sc.SecretPath,
	)
	return affectedOrNotFound(res, err, "failed to update rotation schedule")
}

func (r *Repository) GetScheduleByPath(ctx context.Context, path string) (*rotationDomain.Schedule, error) {
	query := r.rebind(`SELECT ` + scheduleColumns + ` FROM rotation_schedules WHERE secret_path = ?`)
	sc, err := scanSchedule(r.querier(ctx).QueryRowContext(ctx, query, path))
	if err != nil {
		return nil, rowErr(err, "failed to get rotation schedule")
	}
	return sc, nil
}

func (r *Repository) ListSchedules(ctx context.Context, activeOnly bool) ([]*rotationDomain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM rotation_schedules`
	var args []any
	if activeOnly {
		query += ` WHERE active = ?`
		args = append(args, true)
	}
	rows, err := r.querier(ctx).QueryContext(ctx, r.rebind(query+` ORDER BY secret_path`), args...)
	if err != nil {
		return nil, execErr(err, "failed to list rotation schedules")
	}
	defer func() { _ = rows.Close() }()

	var out []*rotationDomain.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, execErr(err, "failed to scan rotation schedule")
		}
		out = append(out, sc)
	}
	return out, execErr(rows.Err(), "failed to iterate rotation schedules")
}
