// Package promhooks exports guardcache hook events as Prometheus metrics.
package promhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/guardcache"
)

type Config struct {
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Namespace prefixes every metric name; default "guardcache".
	Namespace   string
	ConstLabels prometheus.Labels
	// WaitBuckets for the wait-duration histogram, in seconds.
	WaitBuckets []float64
}

type Hooks struct {
	waits          prometheus.Counter
	waitSeconds    prometheus.Histogram
	contended      prometheus.Counter
	staleCleared   prometheus.Counter
	waitTimeouts   prometheus.Counter
	flagErrors     *prometheus.CounterVec
	setRejected    prometheus.Counter
	selfHeals      *prometheus.CounterVec
	producerErrors prometheus.Counter
}

var _ guardcache.Hooks = (*Hooks)(nil)

func New(cfg Config) (*Hooks, error) {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "guardcache"
	}
	buckets := cfg.WaitBuckets
	if buckets == nil {
		buckets = []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60}
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: name, Help: help, ConstLabels: cfg.ConstLabels,
		})
	}

	h := &Hooks{
		waits: counter("flag_waits_total", "Reads that waited for an in-progress write."),
		waitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "flag_wait_seconds",
			Help:        "Time spent waiting for in-progress writes.",
			ConstLabels: cfg.ConstLabels,
			Buckets:     buckets,
		}),
		contended:    counter("flag_contended_total", "Flag creations lost to another holder."),
		staleCleared: counter("stale_flags_cleared_total", "Flags force-cleared after exceeding the staleness threshold."),
		waitTimeouts: counter("wait_timeouts_total", "Waits that hit the maximum wait duration."),
		flagErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "flag_store_errors_total", Help: "Flag store failures by operation.", ConstLabels: cfg.ConstLabels,
		}, []string{"op"}),
		setRejected: counter("provider_set_rejected_total", "Writes rejected by the provider."),
		selfHeals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "self_heal_total", Help: "Entries deleted on read by reason.", ConstLabels: cfg.ConstLabels,
		}, []string{"reason"}),
		producerErrors: counter("producer_errors_total", "Failed value computations."),
	}

	for _, c := range []prometheus.Collector{
		h.waits, h.waitSeconds, h.contended, h.staleCleared, h.waitTimeouts,
		h.flagErrors, h.setRejected, h.selfHeals, h.producerErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) FlagWait(_ string, waited time.Duration) {
	h.waits.Inc()
	h.waitSeconds.Observe(waited.Seconds())
}

func (h *Hooks) FlagContended(string)                 { h.contended.Inc() }
func (h *Hooks) StaleFlagCleared(string)              { h.staleCleared.Inc() }
func (h *Hooks) WaitTimeout(string, time.Duration)    { h.waitTimeouts.Inc() }
func (h *Hooks) FlagStoreError(op, _ string, _ error) { h.flagErrors.WithLabelValues(op).Inc() }
func (h *Hooks) ProviderSetRejected(string)           { h.setRejected.Inc() }
func (h *Hooks) SelfHeal(_, reason string)            { h.selfHeals.WithLabelValues(reason).Inc() }
func (h *Hooks) ProducerError(string, error)          { h.producerErrors.Inc() }
