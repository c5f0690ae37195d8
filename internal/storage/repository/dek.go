package repository

import (
	"context"
	"fmt"

	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
)

const encryptionConfigColumns = `id, table_name, dek_purpose, encrypted_fields, enabled, created_at, updated_at`

func (r *Repository) SaveEncryptionConfig(ctx context.Context, cfg *dekDomain.EncryptionConfig) error {
	fields, err := toJSON(cfg.EncryptedFields)
	if err != nil {
		return err
	}
	query := r.rebind(r.upsert(
		"encryption_configs",
		[]string{"table_name"},
		[]string{"id", "table_name", "dek_purpose", "encrypted_fields", "enabled", "created_at", "updated_at"},
		[]string{"dek_purpose", "encrypted_fields", "enabled", "updated_at"},
	))
	_, err = r.querier(ctx).ExecContext(ctx, query,
		cfg.ID, cfg.TableName, cfg.DekPurpose, fields, cfg.Enabled, cfg.CreatedAt, cfg.UpdatedAt,
	)
	return execErr(err, "failed to save encryption config")
}

func scanEncryptionConfig(s scanner) (*dekDomain.EncryptionConfig, error) {
	var (
		cfg    dekDomain.EncryptionConfig
		fields string
	)
	if err := s.Scan(
		&cfg.ID, &cfg.TableName, &cfg.DekPurpose, &fields, &cfg.Enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := fromJSON(fields, &cfg.EncryptedFields); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *Repository) GetEncryptionConfig(ctx context.Context, tableName string) (*dekDomain.EncryptionConfig, error) {
	query := r.rebind(`SELECT ` + encryptionConfigColumns + ` FROM encryption_configs WHERE table_name = ?`)
	cfg, err := scanEncryptionConfig(r.querier(ctx).QueryRowContext(ctx, query, tableName))
	if err != nil {
		return nil, rowErr(err, "failed to get encryption config")
	}
	return cfg, nil
}

func (r *Repository) ListEncryptionConfigs(ctx context.Context) ([]*dekDomain.EncryptionConfig, error) {
	rows, err := r.querier(ctx).QueryContext(ctx,
		`SELECT `+encryptionConfigColumns+` FROM encryption_configs ORDER BY table_name`)
	if err != nil {
		return nil, execErr(err, "failed to list encryption configs")
	}
	defer func() { _ = rows.Close() }()

	var out []*dekDomain.EncryptionConfig
	for rows.Next() {
		cfg, err := scanEncryptionConfig(rows)
		if err != nil {
			return nil, execErr(err, "failed to scan encryption config")
		}
		out = append(out, cfg)
	}
	return out, execErr(rows.Err(), "failed to iterate encryption configs")
}

func (r *Repository) DeleteEncryptionConfig(ctx context.Context, tableName string) error {
	res, err := r.querier(ctx).ExecContext(ctx,
		r.rebind(`DELETE FROM encryption_configs WHERE table_name = ?`), tableName)
	return affectedOrNotFound(res, err, "failed to delete encryption config")
}

// CountRows counts rows of an application table named by an encryption config.
func (r *Repository) CountRows(ctx context.Context, table string) (int, error) {
	t, err := r.quoteIdent(table)
	if err != nil {
		return 0, err
	}
	var n int
	err = r.querier(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&n)
	return n, execErr(err, "failed to count rows")
}

// ListRows pages the id column plus the requested fields ordered by id.
func (r *Repository) ListRows(
	ctx context.Context,
	table string,
	fields []string,
	offset, limit int,
) ([]*dekDomain.Row, error) {
	t, err := r.quoteIdent(table)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(fields)+1)
	idCol, _ := r.quoteIdent("id")
	cols = append(cols, idCol)
	for _, f := range fields {
		c, err := r.quoteIdent(f)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	if limit <= 0 {
		limit = defaultRowsPageLimit
	}

	query := r.rebind(fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT ? OFFSET ?", joinCols(cols), t, idCol))
	rows, err := r.querier(ctx).QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, execErr(err, "failed to list rows")
	}
	defer func() { _ = rows.Close() }()

	var out []*dekDomain.Row
	for rows.Next() {
		var id string
		values := make([]*string, len(fields))
		dest := make([]any, 0, len(fields)+1)
		dest = append(dest, &id)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, execErr(err, "failed to scan row")
		}
		row := &dekDomain.Row{ID: id, Fields: make(map[string]*string, len(fields))}
		for i, f := range fields {
			row.Fields[f] = values[i]
		}
		out = append(out, row)
	}
	return out, execErr(rows.Err(), "failed to iterate rows")
}

func (r *Repository) UpdateRowField(ctx context.Context, table, id, field, value string) error {
	t, err := r.quoteIdent(table)
	if err != nil {
		return err
	}
	c, err := r.quoteIdent(field)
	if err != nil {
		return err
	}
	idCol, _ := r.quoteIdent("id")

	query := r.rebind(fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", t, c, idCol))
	res, err := r.querier(ctx).ExecContext(ctx, query, value, id)
	return affectedOrNotFound(res, err, "failed to update row field")
}
