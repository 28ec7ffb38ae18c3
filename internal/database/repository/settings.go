package repository

import (
	"context"
	"database/sql"
)

// Well-known setting keys.
const (
	SettingDefaultCurrency = "default_currency"
	SettingLastBackupAt    = "last_backup_at"
	SettingLastDetectAt    = "last_detect_at"
)

// SettingRepo handles key/value settings.
type SettingRepo struct {
	db DBTX
}

func NewSettingRepo(db DBTX) *SettingRepo { return &SettingRepo{db: db} }

func (r *SettingRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO settings(key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value=excluded.value;
	`, key, value)
	return err
}

// SetDefault writes value only when key is absent.
func (r *SettingRepo) SetDefault(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO settings(key, value) VALUES (?, ?)`, key, value)
	return err
}

// Get returns "" with ok=false when the key is absent.
func (r *SettingRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *SettingRepo) List(ctx context.Context) ([]Setting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
