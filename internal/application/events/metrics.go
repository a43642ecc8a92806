package events

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("arbor.events")

var (
	subscriptionsActive metric.Int64UpDownCounter
	eventsDelivered     metric.Int64Counter
	eventsCoalesced     metric.Int64Counter
	subscriptionsReaped metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled turns subscription metrics on or off
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		subscriptionsActive, err = meter.Int64UpDownCounter(
			"arbor_subscriptions_active",
			metric.WithDescription("Open change event subscriptions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		eventsDelivered, err = meter.Int64Counter(
			"arbor_events_delivered_total",
			metric.WithDescription("Change events handed to subscribers"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		eventsCoalesced, err = meter.Int64Counter(
			"arbor_events_coalesced_total",
			metric.WithDescription("Queued change events folded into newer ones"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		subscriptionsReaped, err = meter.Int64Counter(
			"arbor_subscriptions_reaped_total",
			metric.WithDescription("Subscriptions ended by the janitor"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func enabled() bool {
	return metricsEnabled.Load() && initMetrics() == nil
}

func recordActive(ctx context.Context, delta int64) {
	if enabled() {
		subscriptionsActive.Add(ctx, delta)
	}
}

func recordDelivered(ctx context.Context) {
	if enabled() {
		eventsDelivered.Add(ctx, 1)
	}
}

func recordCoalesced(ctx context.Context, n int) {
	if n > 0 && enabled() {
		eventsCoalesced.Add(ctx, int64(n))
	}
}

func recordReaped(ctx context.Context, n int) {
	if n > 0 && enabled() {
		subscriptionsReaped.Add(ctx, int64(n))
	}
}
