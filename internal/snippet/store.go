// Package snippet manages the global named text blocks that email
// templates reference, and renders templates against a record.
package snippet

import (
	"context"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/db"
	"github.com/sells-group/sheets-crm/internal/model"
)

// ErrEmptyKey is returned for a blank snippet key.
var ErrEmptyKey = eris.New("snippet: key is required")

// Store persists snippets.
type Store interface {
	List(ctx context.Context) ([]model.Snippet, error)
	Upsert(ctx context.Context, key, value string) (*model.Snippet, error)
	Delete(ctx context.Context, key string) error
}

// PostgresStore implements Store on the snippets table.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// List returns every snippet ordered by key.
func (s *PostgresStore) List(ctx context.Context) ([]model.Snippet, error) {
	var out []model.Snippet
	if err := pgxscan.Select(ctx, s.pool, &out,
		`SELECT key, value, updated_at FROM snippets ORDER BY key ASC`); err != nil {
		return nil, eris.Wrap(err, "snippet: list")
	}
	return out, nil
}

// Upsert creates or replaces the snippet under key.
func (s *PostgresStore) Upsert(ctx context.Context, key, value string) (*model.Snippet, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	var sn model.Snippet
	err := pgxscan.Get(ctx, s.pool, &sn, `
		INSERT INTO snippets (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = now()
		RETURNING key, value, updated_at`, key, value)
	if err != nil {
		return nil, eris.Wrapf(err, "snippet: upsert %s", key)
	}
	return &sn, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM snippets WHERE key = $1`, key)
	return eris.Wrapf(err, "snippet: delete %s", key)
}

// Map flattens snippets into the key/value form Render takes.
func Map(snippets []model.Snippet) map[string]string {
	m := make(map[string]string, len(snippets))
	for _, s := range snippets {
		m[s.Key] = s.Value
	}
	return m
}
