// Package flagstore holds the "computation in progress" flags guardcache uses to
// keep a single writer per key across processes.
//
// A flag is created right before a value is produced and removed right after it
// has been written to the cache. Create is the only mutual-exclusion primitive:
// it must be an atomic insert-if-absent in every implementation.
package flagstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockConflict is returned by Create when another caller already holds the flag.
var ErrLockConflict = errors.New("flagstore: flag already held")

// Flag is a single in-progress marker.
type Flag struct {
	Key       string
	Owner     string // random token of the creator; Release matches on it
	CreatedAt time.Time
}

// Age reports how long the flag has existed relative to now.
func (f Flag) Age(now time.Time) time.Duration { return now.Sub(f.CreatedAt) }

// FlagStore abstracts where flags live.
// Use Local for a single process, Redis or Postgres when several replicas share a cache.
type FlagStore interface {
	// Exists reports whether a flag for key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Lookup returns the flag for key; ok=false when none is present.
	Lookup(ctx context.Context, key string) (f Flag, ok bool, err error)
	// Create atomically inserts a flag for key.
	// Returns ErrLockConflict when one is already present; any other error is a backend failure.
	Create(ctx context.Context, key string) (Flag, error)
	// Delete removes the flag for key regardless of owner. Missing flags are not an error.
	Delete(ctx context.Context, key string) error
	// Release removes f only if it is still owned by f.Owner. Missing flags are not an error.
	Release(ctx context.Context, f Flag) error
	// ClearStale removes the flag for key if it is older than olderThan.
	// cleared reports whether a flag was removed.
	ClearStale(ctx context.Context, key string, olderThan time.Duration) (cleared bool, err error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}

func newOwner() string { return uuid.NewString() }
