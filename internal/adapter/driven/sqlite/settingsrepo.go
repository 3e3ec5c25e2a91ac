package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SettingsStore = (*SettingsRepo)(nil)

// SettingsRepo is the local settings backend. It is the durability floor for
// settings when the remote store is unreachable.
type SettingsRepo struct {
	db *DB
}

// NewSettingsRepo creates a new SettingsRepo backed by the given DB.
func NewSettingsRepo(db *DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// Get returns the stored value for key. Returns ("", false, nil) when the key
// is absent.
func (r *SettingsRepo) Get(ctx context.Context, key model.SettingKey) (string, bool, error) {
	const query = `SELECT value FROM settings WHERE key = ?`

	var value string
	err := r.db.Reader.QueryRowContext(ctx, query, string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}

	return value, true, nil
}

// Set inserts or replaces the value for key.
func (r *SettingsRepo) Set(ctx context.Context, key model.SettingKey, value string) error {
	const query = `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.Writer.ExecContext(ctx, query, string(key), value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}

	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (r *SettingsRepo) Remove(ctx context.Context, key model.SettingKey) error {
	const query = `DELETE FROM settings WHERE key = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, string(key)); err != nil {
		return fmt.Errorf("remove setting %s: %w", key, err)
	}

	return nil
}
