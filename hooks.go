package guardcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A reader waited for an in-progress write to finish.
	FlagWait(key string, waited time.Duration)

	// Create lost the race: another caller holds the flag.
	FlagContended(key string)

	// A flag older than StaleAfter was force-cleared by a waiter.
	StaleFlagCleared(key string)

	// A wait hit MaxWait with the flag still present.
	WaitTimeout(key string, waited time.Duration)

	// Flag store call failed.
	// op ∈ {"exists", "create", "release", "clear_stale"}
	FlagStoreError(op, key string, err error)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// A value was deleted by the cache on read.
	// reason ∈ {"corrupt", "expired", "value_decode"}
	SelfHeal(storageKey, reason string)

	// The producer passed to Remember/RememberForever failed.
	ProducerError(key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FlagWait(string, time.Duration)       {}
func (NopHooks) FlagContended(string)                 {}
func (NopHooks) StaleFlagCleared(string)              {}
func (NopHooks) WaitTimeout(string, time.Duration)    {}
func (NopHooks) FlagStoreError(string, string, error) {}
func (NopHooks) ProviderSetRejected(string)           {}
func (NopHooks) SelfHeal(string, string)              {}
func (NopHooks) ProducerError(string, error)          {}
