// Package otelhooks records guardcache hook events as OpenTelemetry metrics.
package otelhooks

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/guardcache"
)

const instrumentationName = "github.com/unkn0wn-root/guardcache"

type Hooks struct {
	waits          metric.Int64Counter
	waitDuration   metric.Float64Histogram
	contended      metric.Int64Counter
	staleCleared   metric.Int64Counter
	waitTimeouts   metric.Int64Counter
	flagErrors     metric.Int64Counter
	setRejected    metric.Int64Counter
	selfHeals      metric.Int64Counter
	producerErrors metric.Int64Counter
}

var _ guardcache.Hooks = (*Hooks)(nil)

// New creates the instruments on mp. A nil mp uses the global MeterProvider.
func New(mp metric.MeterProvider) (*Hooks, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(instrumentationName)

	var h Hooks
	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&h.waits, "guardcache.flag.waits", "Reads that waited for an in-progress write."},
		{&h.contended, "guardcache.flag.contended", "Flag creations lost to another holder."},
		{&h.staleCleared, "guardcache.flag.stale_cleared", "Flags force-cleared after exceeding the staleness threshold."},
		{&h.waitTimeouts, "guardcache.flag.wait_timeouts", "Waits that hit the maximum wait duration."},
		{&h.flagErrors, "guardcache.flag.errors", "Flag store failures by operation."},
		{&h.setRejected, "guardcache.provider.set_rejected", "Writes rejected by the provider."},
		{&h.selfHeals, "guardcache.self_heals", "Entries deleted on read by reason."},
		{&h.producerErrors, "guardcache.producer.errors", "Failed value computations."},
	}
	for _, c := range counters {
		*c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	h.waitDuration, err = m.Float64Histogram("guardcache.flag.wait_duration",
		metric.WithDescription("Time spent waiting for in-progress writes."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Hooks have no caller context; measurements are recorded against Background.
func (h *Hooks) FlagWait(_ string, waited time.Duration) {
	ctx := context.Background()
	h.waits.Add(ctx, 1)
	h.waitDuration.Record(ctx, waited.Seconds())
}

func (h *Hooks) FlagContended(string)    { h.contended.Add(context.Background(), 1) }
func (h *Hooks) StaleFlagCleared(string) { h.staleCleared.Add(context.Background(), 1) }
func (h *Hooks) WaitTimeout(string, time.Duration) {
	h.waitTimeouts.Add(context.Background(), 1)
}
func (h *Hooks) FlagStoreError(op, _ string, _ error) {
	h.flagErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
}
func (h *Hooks) ProviderSetRejected(string) { h.setRejected.Add(context.Background(), 1) }
func (h *Hooks) SelfHeal(_, reason string) {
	h.selfHeals.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}
func (h *Hooks) ProducerError(string, error) { h.producerErrors.Add(context.Background(), 1) }
