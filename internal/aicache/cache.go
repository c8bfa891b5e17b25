// Package aicache memoizes AI provider responses as JSON under opaque keys.
// Entries never expire; a key embeds the entity's last-modified time so an
// edit naturally misses.
package aicache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Cache stores JSON values by key.
type Cache interface {
	// Get decodes the stored value into out. It reports false on a miss.
	Get(ctx context.Context, key string, out any) (bool, error)
	// Set upserts value under key.
	Set(ctx context.Context, key string, value any) error
}

// Key builds the conventional feature:version:entity:modified key.
func Key(feature, version, entityID string, modified time.Time) string {
	return strings.Join([]string{feature, version, entityID, stamp(modified)}, ":")
}

// SignatureKey keys inputs that are not tied to one entity by a digest of
// their JSON encoding.
func SignatureKey(feature, version string, input any) (string, error) {
	b, err := json.Marshal(input)
	if err != nil {
		return "", eris.Wrap(err, "aicache: marshal signature input")
	}
	sum := sha256.Sum256(b)
	return feature + ":" + version + ":sig:" + hex.EncodeToString(sum[:12]), nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func encode(value any) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, eris.Wrap(err, "aicache: marshal value")
	}
	return b, nil
}

func decode(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	return eris.Wrap(json.Unmarshal(raw, out), "aicache: unmarshal value")
}
