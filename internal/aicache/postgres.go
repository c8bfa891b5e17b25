package aicache

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/db"
)

// PostgresCache implements Cache on the ai_cache table.
type PostgresCache struct {
	pool db.Pool
}

// NewPostgres creates a PostgresCache.
func NewPostgres(pool db.Pool) *PostgresCache {
	return &PostgresCache{pool: pool}
}

// Get implements Cache.
func (c *PostgresCache) Get(ctx context.Context, key string, out any) (bool, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx, `SELECT value_json FROM ai_cache WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, eris.Wrapf(err, "aicache: get %s", key)
	}
	if err := decode(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Cache.
func (c *PostgresCache) Set(ctx context.Context, key string, value any) error {
	b, err := encode(value)
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO ai_cache (key, value_json) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value_json = excluded.value_json`, key, b)
	return eris.Wrapf(err, "aicache: set %s", key)
}
