// Package cache provides the short-TTL keyed store the engines publish into
// and the REST surface reads from. Keys are "kind:symbol". The in-memory
// backend is the default; a Redis backend is selected when CACHE_URL is set.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or its TTL has lapsed.
var ErrNotFound = errors.New("cache: not found")

// Cache is the narrow store interface shared by all components.
// Values are opaque JSON-encoded bytes; mutations are last-writer-wins.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Well-known key kinds.
const (
	KindSnapshot  = "snapshot"
	KindOutlook   = "outlook"
	KindDecision  = "decision"
	KindIndicator = "indicators"
	KindIndices   = "indices"
)

// Key builds the canonical "kind:symbol" key.
func Key(kind, symbol string) string {
	return kind + ":" + symbol
}
