package guardcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/guardcache/codec"
	fs "github.com/unkn0wn-root/guardcache/flagstore"
	pr "github.com/unkn0wn-root/guardcache/provider"
)

// Producer computes a value for a key on a cache miss.
type Producer[V any] func(ctx context.Context) (V, error)

// Cache is the stampede-safe cache API.
// V is the caller's value type. Serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Get waits while a write for key is in progress, then reads it.
	Get(ctx context.Context, key string) (v V, ok bool, err error)
	// GetOr is Get returning def on a miss.
	GetOr(ctx context.Context, key string, def V) (V, error)

	// Put writes value for ttl. ttl <= 0 is treated as "no expiry requested" and
	// performs no write at all.
	Put(ctx context.Context, key string, value V, ttl time.Duration) error
	// PutUntil writes value until at. Instants not in the future perform no write.
	PutUntil(ctx context.Context, key string, value V, at time.Time) error
	// Forever writes value with no expiry.
	Forever(ctx context.Context, key string, value V) error
	// Delete removes the cached value for key (flags are untouched).
	Delete(ctx context.Context, key string) error

	// Remember returns the cached value or computes it once across all callers and
	// caches it for ttl.
	Remember(ctx context.Context, key string, ttl time.Duration, fn Producer[V]) (V, error)
	// RememberForever is Remember with no expiry.
	RememberForever(ctx context.Context, key string, fn Producer[V]) (V, error)
}

// Options tune the behavior of the guarded cache.
// Namespace, Provider and Codec are required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions. e.g. "user", "report"
	Provider  pr.Provider
	Codec     c.Codec[V]

	Flags  fs.FlagStore // nil => fs.Local with a reaper (in-process only)
	Logger Logger       // nil => NopLogger
	Hooks  Hooks        // nil => NopHooks

	PollInterval  time.Duration // 0 => 3s
	MaxWait       time.Duration // 0 => 30s; < 0 waits without bound
	StaleAfter    time.Duration // 0 => 2m; < 0 never force-clears flags
	MaxFlagErrors int           // consecutive flag store failures tolerated; 0 => 3

	// ReadOnWaitTimeout reads whatever is cached when MaxWait expires instead of
	// returning ErrWaitTimeout.
	ReadOnWaitTimeout bool
	// StrictFlagErrors returns a *BackendError once MaxFlagErrors lookups failed in
	// a row, instead of failing open and reading the cache.
	StrictFlagErrors bool
	Disabled         bool // default false (enabled)
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
