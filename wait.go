package guardcache

import (
	"context"
	"fmt"
	"time"
)

// awaitFlag blocks while a write for key is in progress.
//
// It polls the flag store every pollInterval. A flag older than staleAfter is
// force-cleared and the wait ends. Flag store failures are tolerated up to
// maxFlagErrors in a row; after that the wait fails open (or returns a
// *BackendError with StrictFlagErrors). maxWait is measured from start, so
// callers that wait more than once share one budget.
func (c *cache[V]) awaitFlag(ctx context.Context, key string, start time.Time) error {
	fk := c.flagKey(key)
	waitStart := c.now()
	failures := 0
	waited := false

	for {
		held, err := c.flags.Exists(ctx, fk)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			c.hooks.FlagStoreError("exists", key, err)
			c.log.Warn("flag lookup failed", Fields{"key": key, "err": err, "attempt": failures})
			if failures >= c.maxFlagErrors {
				if c.strictFlagErrors {
					return &BackendError{Op: "exists", Key: key, Err: err}
				}
				c.log.Warn("flag store unavailable; reading without waiting", Fields{"key": key})
				return nil
			}

		case !held:
			if waited {
				c.hooks.FlagWait(key, c.now().Sub(waitStart))
			}
			return nil

		default:
			failures = 0
			if c.staleAfter > 0 {
				cleared, err := c.flags.ClearStale(ctx, fk, c.staleAfter)
				if err != nil {
					c.hooks.FlagStoreError("clear_stale", key, err)
				} else if cleared {
					c.hooks.StaleFlagCleared(key)
					c.log.Warn("cleared stale flag", Fields{"key": key, "olderThan": c.staleAfter})
					return nil
				}
			}
		}

		elapsed := c.now().Sub(start)
		if c.maxWait >= 0 && elapsed >= c.maxWait {
			c.hooks.WaitTimeout(key, elapsed)
			return fmt.Errorf("%w: %q", ErrWaitTimeout, key)
		}

		d := c.pollInterval
		if c.maxWait >= 0 && c.maxWait-elapsed < d {
			d = c.maxWait - elapsed
		}
		waited = true
		if err := c.sleep(ctx, d); err != nil {
			return err
		}
	}
}

// sleep suspends the calling goroutine for d or until ctx is done.
func (c *cache[V]) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
