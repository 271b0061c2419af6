package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/timbang-id/timbang/internal/domain"
)

// Setting returns one value, or "" when the key was never saved.
func (db *DB) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := sqlx.GetContext(ctx, db.db, &v, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &domain.StorageError{Op: "get setting", Err: err}
	}
	return v, nil
}

// Settings returns every saved key/value pair.
func (db *DB) Settings(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := sqlx.SelectContext(ctx, db.db, &rows, `SELECT key, value FROM settings`); err != nil {
		return nil, &domain.StorageError{Op: "list settings", Err: err}
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// SaveSettings upserts all values in one transaction.
func (db *DB) SaveSettings(ctx context.Context, values map[string]string) error {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "save settings", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return &domain.StorageError{Op: "save settings", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "save settings", Err: err}
	}
	return nil
}
