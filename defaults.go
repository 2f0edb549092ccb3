package guardcache

import "time"

const (
	defaultPollInterval  = 3 * time.Second
	defaultMaxWait       = 30 * time.Second
	defaultStaleAfter    = 2 * time.Minute
	defaultMaxFlagErrors = 3

	// local flag store used when Options.Flags is nil
	defaultReapInterval  = time.Minute
	defaultFlagRetention = 10 * time.Minute
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
