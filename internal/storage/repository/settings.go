package repository

import (
	"context"

	"github.com/allisson/keyvault/internal/settings"
)

func (r *Repository) GetSetting(ctx context.Context, key string) (*settings.Setting, error) {
	query := r.rebind(`SELECT setting_key, setting_value, updated_at FROM vault_settings WHERE setting_key = ?`)

	var st settings.Setting
	if err := r.querier(ctx).QueryRowContext(ctx, query, key).Scan(&st.Key, &st.Value, &st.UpdatedAt); err != nil {
		return nil, rowErr(err, "failed to get setting")
	}
	return &st, nil
}

func (r *Repository) SaveSetting(ctx context.Context, setting *settings.Setting) error {
	query := r.rebind(r.upsert(
		"vault_settings",
		[]string{"setting_key"},
		[]string{"setting_key", "setting_value", "updated_at"},
		[]string{"setting_value", "updated_at"},
	))
	_, err := r.querier(ctx).ExecContext(ctx, query, setting.Key, setting.Value, setting.UpdatedAt)
	return execErr(err, "failed to save setting")
}

func (r *Repository) DeleteSetting(ctx context.Context, key string) error {
	res, err := r.querier(ctx).ExecContext(ctx, r.rebind(`DELETE FROM vault_settings WHERE setting_key = ?`), key)
	return affectedOrNotFound(res, err, "failed to delete setting")
}

func (r *Repository) ListSettings(ctx context.Context, prefix string) ([]*settings.Setting, error) {
	query := r.rebind(`SELECT setting_key, setting_value, updated_at FROM vault_settings
		WHERE setting_key LIKE ? ORDER BY setting_key`)

	rows, err := r.querier(ctx).QueryContext(ctx, query, likePrefix(prefix))
	if err != nil {
		return nil, execErr(err, "failed to list settings")
	}
	defer func() { _ = rows.Close() }()

	var out []*settings.Setting
	for rows.Next() {
		var st settings.Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.UpdatedAt); err != nil {
			return nil, execErr(err, "failed to scan setting")
		}
		out = append(out, &st)
	}
	return out, execErr(rows.Err(), "failed to iterate settings")
}
