// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{FlagWaitEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := guardcache.New[Report](guardcache.Options[Report]{
//	    Namespace: "app:prod:report",
//	    Provider:  provider,
//	    Codec:     codec.JSON[Report]{},
//	    Flags:     flags,
//	    Hooks:     hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/guardcache"
)

// Hooks forwards events to inner on background workers.
// Events are dropped when the queue is full so the cache never blocks on a hook.
type Hooks struct {
	inner   guardcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ guardcache.Hooks = (*Hooks)(nil)

func New(inner guardcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent afterwards are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost a race with Close: send on closed channel
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) FlagWait(k string, d time.Duration) { h.try(func() { h.inner.FlagWait(k, d) }) }
func (h *Hooks) FlagContended(k string)             { h.try(func() { h.inner.FlagContended(k) }) }
func (h *Hooks) StaleFlagCleared(k string)          { h.try(func() { h.inner.StaleFlagCleared(k) }) }
func (h *Hooks) ProviderSetRejected(k string)       { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) SelfHeal(k, r string)               { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProducerError(k string, err error)  { h.try(func() { h.inner.ProducerError(k, err) }) }
func (h *Hooks) WaitTimeout(k string, d time.Duration) {
	h.try(func() { h.inner.WaitTimeout(k, d) })
}
func (h *Hooks) FlagStoreError(op, k string, err error) {
	h.try(func() { h.inner.FlagStoreError(op, k, err) })
}
