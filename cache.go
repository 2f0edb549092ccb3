package guardcache

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/guardcache/codec"
	fs "github.com/unkn0wn-root/guardcache/flagstore"
	"github.com/unkn0wn-root/guardcache/internal/wire"
	pr "github.com/unkn0wn-root/guardcache/provider"
)

type cache[V any] struct {
	ns       string
	provider pr.Provider
	codec    codec.Codec[V]
	flags    fs.FlagStore
	log      Logger
	hooks    Hooks

	enabled bool

	pollInterval      time.Duration
	maxWait           time.Duration
	staleAfter        time.Duration
	maxFlagErrors     int
	readOnWaitTimeout bool
	strictFlagErrors  bool

	// collapses concurrent compute-once callers of this process into one flag attempt
	group singleflight.Group

	now func() time.Time
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("guardcache: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("guardcache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("guardcache: namespace is required")
	}

	c := &cache[V]{
		ns:                opts.Namespace,
		provider:          opts.Provider,
		codec:             opts.Codec,
		enabled:           !opts.Disabled,
		readOnWaitTimeout: opts.ReadOnWaitTimeout,
		strictFlagErrors:  opts.StrictFlagErrors,
		now:               time.Now,
	}

	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.pollInterval = coalesce(opts.PollInterval, defaultPollInterval)
	c.maxWait = coalesce(opts.MaxWait, defaultMaxWait)
	c.staleAfter = coalesce(opts.StaleAfter, defaultStaleAfter)
	c.maxFlagErrors = coalesce(opts.MaxFlagErrors, defaultMaxFlagErrors)

	if opts.Flags != nil {
		c.flags = opts.Flags
	} else {
		// default to in-process flags with an orphan reaper
		c.flags = fs.NewLocal(defaultReapInterval, defaultFlagRetention)
	}

	return c, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

func (c *cache[V]) Close(ctx context.Context) error {
	// Close flag store first (best effort)
	if c.flags != nil {
		_ = c.flags.Close(ctx)
	}
	if c.provider != nil {
		return c.provider.Close(ctx)
	}
	return nil
}

func (c *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !c.enabled {
		return zero, false, nil
	}
	return c.get(ctx, key, c.now())
}

// get waits for the flag on key with the MaxWait budget counted from start, then reads.
func (c *cache[V]) get(ctx context.Context, key string, start time.Time) (V, bool, error) {
	var zero V
	if err := c.awaitFlag(ctx, key, start); err != nil {
		if !errors.Is(err, ErrWaitTimeout) || !c.readOnWaitTimeout {
			return zero, false, err
		}
		c.log.Warn("flag wait timed out; reading current value", Fields{"key": key})
	}
	return c.read(ctx, key)
}

func (c *cache[V]) GetOr(ctx context.Context, key string, def V) (V, error) {
	v, ok, err := c.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

func (c *cache[V]) Put(ctx context.Context, key string, value V, ttl time.Duration) error {
	ttl, ok := normalizeTTL(ttl)
	if !c.enabled || !ok {
		return nil
	}
	return c.guardedWrite(ctx, key, value, ttl)
}

func (c *cache[V]) PutUntil(ctx context.Context, key string, value V, at time.Time) error {
	return c.Put(ctx, key, value, at.Sub(c.now()))
}

func (c *cache[V]) Forever(ctx context.Context, key string, value V) error {
	if !c.enabled {
		return nil
	}
	return c.guardedWrite(ctx, key, value, 0)
}

func (c *cache[V]) Delete(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	if err := c.provider.Del(ctx, c.valueKey(key)); err != nil {
		return &BackendError{Op: "del", Key: key, Err: err}
	}
	return nil
}

func (c *cache[V]) RememberForever(ctx context.Context, key string, fn Producer[V]) (V, error) {
	return c.remember(ctx, key, 0, fn)
}

func (c *cache[V]) Remember(ctx context.Context, key string, ttl time.Duration, fn Producer[V]) (V, error) {
	ttl, ok := normalizeTTL(ttl)
	if !ok {
		// nothing would be cached; do not take a flag for it
		c.log.Debug("Remember with non-positive ttl; computing uncached", Fields{"key": key})
		return fn(ctx)
	}
	return c.remember(ctx, key, ttl, fn)
}

// remember is the compute-once path. ttl == 0 caches forever.
func (c *cache[V]) remember(ctx context.Context, key string, ttl time.Duration, fn Producer[V]) (V, error) {
	var zero V
	if !c.enabled {
		return fn(ctx)
	}

	// one MaxWait budget covers the whole call
	start := c.now()

	// fast path: cached, or someone else finished producing it while we waited
	if v, ok, err := c.get(ctx, key, start); err != nil {
		return zero, err
	} else if ok {
		return v, nil
	}

	// The shared call keeps running when the first caller goes away so a held
	// flag is always released by its owner. Producer panics come back as *PanicError.
	ch := c.group.DoChan(key, func() (_ any, err error) {
		defer func() {
			if r := recover(); r != nil {
				perr := &PanicError{Key: key, Value: r, Stack: debug.Stack()}
				c.hooks.ProducerError(key, perr)
				c.log.Error("producer panicked", Fields{"key": key, "panic": r})
				err = perr
			}
		}()
		return c.computeOnce(context.WithoutCancel(ctx), key, start, ttl, fn)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

func (c *cache[V]) computeOnce(ctx context.Context, key string, start time.Time, ttl time.Duration, fn Producer[V]) (V, error) {
	var zero V
	backendErrs := 0

	for {
		flag, err := c.flags.Create(ctx, c.flagKey(key))
		switch {
		case err == nil:
			return c.produce(ctx, key, ttl, flag, fn)

		case errors.Is(err, fs.ErrLockConflict):
			// another caller is producing; wait for it and take its value
			backendErrs = 0
			c.hooks.FlagContended(key)
			v, ok, err := c.get(ctx, key, start)
			if err != nil {
				return zero, err
			}
			if ok {
				return v, nil
			}
			// holder released without a value (failed or evicted); try to take over
			c.log.Debug("flag holder left no value; retrying", Fields{"key": key})

		default:
			backendErrs++
			c.hooks.FlagStoreError("create", key, err)
			c.log.Warn("flag create failed", Fields{"key": key, "err": err, "attempt": backendErrs})
			if backendErrs >= c.maxFlagErrors {
				return zero, &BackendError{Op: "create", Key: key, Err: err}
			}
			if err := c.sleep(ctx, c.pollInterval); err != nil {
				return zero, err
			}
		}

		if c.maxWait >= 0 && c.now().Sub(start) >= c.maxWait {
			c.hooks.WaitTimeout(key, c.now().Sub(start))
			return zero, fmt.Errorf("%w: %q", ErrWaitTimeout, key)
		}
	}
}

// produce runs fn while holding flag and caches its result.
// The flag is released on every path.
func (c *cache[V]) produce(ctx context.Context, key string, ttl time.Duration, flag fs.Flag, fn Producer[V]) (V, error) {
	defer func() {
		if err := c.release(key, flag); err != nil {
			c.log.Error("flag release failed after compute", Fields{"key": key, "err": err})
		}
	}()

	// a previous holder may have written the value between our miss and our create
	if v, ok, err := c.read(ctx, key); err == nil && ok {
		return v, nil
	}

	v, err := fn(ctx)
	if err != nil {
		c.hooks.ProducerError(key, err)
		c.log.Debug("producer failed; nothing cached", Fields{"key": key, "err": err})
		var zero V
		return zero, err
	}
	if err := c.write(ctx, key, v, ttl); err != nil {
		// the value is still good for this caller; waiters will miss and retry
		c.log.Error("write after compute failed", Fields{"key": key, "err": err})
	}
	return v, nil
}

// guardedWrite brackets a write with a flag so concurrent readers wait for it.
// A held flag means another writer is active; wait for it, then take our own.
func (c *cache[V]) guardedWrite(ctx context.Context, key string, value V, ttl time.Duration) error {
	flag, err := c.acquire(ctx, key)
	if err != nil {
		return err
	}

	perr := &PutError{Key: key}
	perr.WriteErr = c.write(ctx, key, value, ttl)
	perr.ReleaseErr = c.release(key, flag)
	if perr.WriteErr != nil || perr.ReleaseErr != nil {
		return perr
	}
	return nil
}

func (c *cache[V]) acquire(ctx context.Context, key string) (fs.Flag, error) {
	start := c.now()
	backendErrs := 0
	for {
		flag, err := c.flags.Create(ctx, c.flagKey(key))
		if err == nil {
			return flag, nil
		}
		if errors.Is(err, fs.ErrLockConflict) {
			backendErrs = 0
			c.hooks.FlagContended(key)
			if err := c.awaitFlag(ctx, key, start); err != nil {
				return fs.Flag{}, err
			}
			continue
		}

		backendErrs++
		c.hooks.FlagStoreError("create", key, err)
		if backendErrs >= c.maxFlagErrors {
			return fs.Flag{}, &BackendError{Op: "create", Key: key, Err: err}
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return fs.Flag{}, err
		}
	}
}

// release runs on a context detached from the caller's so a cancelled request
// still removes its flag.
func (c *cache[V]) release(key string, flag fs.Flag) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.pollInterval+5*time.Second)
	defer cancel()
	if err := c.flags.Release(ctx, flag); err != nil {
		c.hooks.FlagStoreError("release", key, err)
		return err
	}
	return nil
}

func (c *cache[V]) read(ctx context.Context, key string) (V, bool, error) {
	var zero V
	k := c.valueKey(key)
	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil {
		return zero, false, &BackendError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return zero, false, nil
	}
	e, err := wire.Decode(raw)
	if err != nil {
		c.selfHeal(ctx, k, "corrupt")
		return zero, false, nil
	}
	if e.Expired(c.now()) {
		c.selfHeal(ctx, k, "expired")
		return zero, false, nil
	}
	v, err := c.codec.Decode(e.Payload)
	if err != nil {
		c.selfHeal(ctx, k, "value_decode")
		return zero, false, nil
	}
	return v, true, nil
}

func (c *cache[V]) write(ctx context.Context, key string, value V, ttl time.Duration) error {
	payload, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	k := c.valueKey(key)
	ok, err := c.provider.Set(ctx, k, wire.Encode(exp, payload), ttl)
	if err != nil {
		return &BackendError{Op: "set", Key: key, Err: err}
	}
	if !ok {
		c.hooks.ProviderSetRejected(k)
		c.log.Debug("write rejected by provider (pressure)", Fields{"key": key})
	}
	return nil
}

func (c *cache[V]) selfHeal(ctx context.Context, storageKey, reason string) {
	_ = c.provider.Del(ctx, storageKey)
	c.hooks.SelfHeal(storageKey, reason)
}

func (c *cache[V]) valueKey(userKey string) string {
	// isolate by namespace
	return "val:" + c.ns + ":" + userKey
}

func (c *cache[V]) flagKey(userKey string) string {
	return c.ns + ":" + userKey
}

// normalizeTTL maps a requested ttl to the one written; ok=false means "do not write".
func normalizeTTL(ttl time.Duration) (time.Duration, bool) {
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}
