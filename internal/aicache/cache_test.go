package aicache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type templateOut struct {
	EmailTemplate string `json:"emailTemplate"`
}

func TestKey(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 12, 0, 0, 500_000_000, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "ai:email-template:v1:abc:2024-03-01T17:00:00.5Z", Key("ai:email-template", "v1", "abc", ts))
	assert.Equal(t, "px:categorize:v1:abc:", Key("px:categorize", "v1", "abc", time.Time{}))
}

func TestSignatureKey_Stable(t *testing.T) {
	t.Parallel()

	a, err := SignatureKey("px:suggest", "v1", map[string]string{"q": "boutique search firms"})
	require.NoError(t, err)
	b, err := SignatureKey("px:suggest", "v1", map[string]string{"q": "boutique search firms"})
	require.NoError(t, err)
	c, err := SignatureKey("px:suggest", "v1", map[string]string{"q": "other"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "px:suggest:v1:sig:")
}

func TestPostgres_GetHit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT value_json FROM ai_cache").
		WithArgs("k1").
		WillReturnRows(pgxmock.NewRows([]string{"value_json"}).AddRow([]byte(`{"emailTemplate":"Hi"}`)))

	var out templateOut
	ok, err := NewPostgres(mock).Get(context.Background(), "k1", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hi", out.EmailTemplate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT value_json FROM ai_cache").
		WithArgs("k1").
		WillReturnError(pgx.ErrNoRows)

	ok, err := NewPostgres(mock).Get(context.Background(), "k1", &templateOut{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Set(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO ai_cache").
		WithArgs("k1", []byte(`{"emailTemplate":"Hi"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO ai_cache").
		WithArgs("k2", []byte(`{"emailTemplate":""}`)).
		WillReturnError(errors.New("boom"))

	c := NewPostgres(mock)
	require.NoError(t, c.Set(context.Background(), "k1", templateOut{EmailTemplate: "Hi"}))
	assert.Error(t, c.Set(context.Background(), "k2", templateOut{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_RoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	c, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck

	var out templateOut
	ok, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", templateOut{EmailTemplate: "first"}))
	require.NoError(t, c.Set(ctx, "k", templateOut{EmailTemplate: "second"}))

	ok, err = c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", out.EmailTemplate)
}
