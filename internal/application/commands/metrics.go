package commands

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"arbor/internal/application"
	"arbor/internal/domain"
)

var (
	meter  = otel.Meter("arbor.commands")
	tracer = otel.Tracer("arbor.commands")
)

var (
	commandsTotal   metric.Int64Counter
	commandDuration metric.Float64Histogram
	eventsTotal     metric.Int64Counter
	historyDepth    metric.Int64Gauge

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled turns command metrics on or off
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		commandsTotal, err = meter.Int64Counter(
			"arbor_commands_total",
			metric.WithDescription("Commands applied, by kind and result code"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		commandDuration, err = meter.Float64Histogram(
			"arbor_command_duration_seconds",
			metric.WithDescription("Time spent applying a command"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		eventsTotal, err = meter.Int64Counter(
			"arbor_events_published_total",
			metric.WithDescription("Change events published after commit"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		historyDepth, err = meter.Int64Gauge(
			"arbor_undo_depth",
			metric.WithDescription("Records on the undo stack"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCommand(ctx context.Context, kind domain.CommandKind, code application.Code, elapsed time.Duration) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	status := "ok"
	if code != application.CodeOK {
		status = string(code)
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("code", status),
	)
	commandsTotal.Add(ctx, 1, attrs)
	commandDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func recordEvents(ctx context.Context, n int, undoDepth int) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	if n > 0 {
		eventsTotal.Add(ctx, int64(n))
	}
	historyDepth.Record(ctx, int64(undoDepth))
}
