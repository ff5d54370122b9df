// Package kv defines the durable key-value slot the engine persists into.
// Keys are strings, values are JSON-serializable. The backing technology
// is up to the implementation; the engine is agnostic.
package kv

import (
	"context"
	"time"
)

// KV is the interface for a persistent key-value store.
// Get on a missing key returns an error wrapping sql.ErrNoRows.
type KV interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
}
