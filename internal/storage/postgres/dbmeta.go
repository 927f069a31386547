package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/garak-ctl/garak-ctl/internal/apperr"
)

// MetaStore is a small key/value table used by the reaper to persist
// the last statistics-cache refresh timestamp and similar singleton
// state across Controller restarts.
type MetaStore struct {
	client *Client
}

// NewMetaStore returns a MetaStore backed by client.
func NewMetaStore(client *Client) *MetaStore {
	return &MetaStore{client: client}
}

// Get returns the value stored under key, or apperr.ErrNotFound.
func (m *MetaStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := m.client.Pool.QueryRow(ctx, `SELECT value FROM db_meta WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	return value, err
}

// Set upserts key to value.
func (m *MetaStore) Set(ctx context.Context, key, value string) error {
	_, err := m.client.Pool.Exec(ctx, `
		INSERT INTO db_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}
