// Package sloghooks logs guardcache hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/guardcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FlagWaitEvery  uint64
	ContendedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	waitCtr      atomic.Uint64
	contendedCtr atomic.Uint64
}

var _ guardcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FlagWait(key string, waited time.Duration) {
	if h.l == nil || !sample(h.opts.FlagWaitEvery, &h.waitCtr) {
		return
	}
	h.l.Debug("guardcache.flag_wait",
		"key", h.redact(key),
		"waited", waited)
}

func (h *Hooks) FlagContended(key string) {
	if h.l == nil || !sample(h.opts.ContendedEvery, &h.contendedCtr) {
		return
	}
	h.l.Debug("guardcache.flag_contended",
		"key", h.redact(key))
}

func (h *Hooks) StaleFlagCleared(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("guardcache.stale_flag_cleared",
		"key", h.redact(key))
}

func (h *Hooks) WaitTimeout(key string, waited time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Warn("guardcache.wait_timeout",
		"key", h.redact(key),
		"waited", waited)
}

func (h *Hooks) FlagStoreError(op, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("guardcache.flag_store_error",
		"op", op,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("guardcache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("guardcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProducerError(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Info("guardcache.producer_error",
		"key", h.redact(key),
		"err", err)
}
