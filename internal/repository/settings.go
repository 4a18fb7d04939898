package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/hearth-checkout/internal/domain/settings"
)

const (
	getSettingSQL = `SELECT value FROM site_settings WHERE key = $1`

	putSettingSQL = `INSERT INTO site_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
)

var _ settings.Store = (*SettingsRepository)(nil)

// SettingsRepository implements settings.Store over the site_settings table.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns the stored value, or "" when the key is absent.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, getSettingSQL, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting setting %q: %w", key, err)
	}
	return value, nil
}

// Put stores value under key.
func (r *SettingsRepository) Put(ctx context.Context, key, value string) error {
	if _, err := r.pool.Exec(ctx, putSettingSQL, key, value); err != nil {
		return fmt.Errorf("putting setting %q: %w", key, err)
	}
	return nil
}
