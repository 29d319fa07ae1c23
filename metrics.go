package uselock

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

type tableMetrics struct {
	acquireCount    metric.Int64Counter
	acquireDuration metric.Int64Histogram
	attemptTimeouts metric.Int64Counter
	deadlockCount   metric.Int64Counter
	waitingGauge    metric.Int64ObservableGauge
}

func newTableMetrics(table *WaitTable, provider metric.MeterProvider, logger pslog.Logger) *tableMetrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("pkt.systems/uselock")
	m := &tableMetrics{}
	var err error

	m.acquireCount, err = meter.Int64Counter(
		"uselock.lock.acquire",
		metric.WithDescription("Lock acquisitions"),
	)
	logMetricInitError(logger, "uselock.lock.acquire", err)

	m.acquireDuration, err = meter.Int64Histogram(
		"uselock.lock.acquire.duration_ms",
		metric.WithDescription("Lock acquire duration"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "uselock.lock.acquire.duration_ms", err)

	m.attemptTimeouts, err = meter.Int64Counter(
		"uselock.lock.attempt_timeout",
		metric.WithDescription("Bounded acquisition attempts that timed out"),
	)
	logMetricInitError(logger, "uselock.lock.attempt_timeout", err)

	m.deadlockCount, err = meter.Int64Counter(
		"uselock.lock.deadlock",
		metric.WithDescription("Acquisitions aborted by a detected deadlock cycle"),
	)
	logMetricInitError(logger, "uselock.lock.deadlock", err)

	m.waitingGauge, err = meter.Int64ObservableGauge(
		"uselock.waiting_contexts",
		metric.WithDescription("Execution contexts currently blocked on a lock"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(table.Len()))
			return nil
		}),
	)
	logMetricInitError(logger, "uselock.waiting_contexts", err)

	return m
}

func (m *tableMetrics) recordAcquire(ctx context.Context, duration time.Duration, attempts int, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("uselock.result", metricResultLabel(err)),
		attribute.Bool("uselock.contended", attempts > 1),
	}
	if m.acquireCount != nil {
		m.acquireCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.acquireDuration != nil {
		m.acquireDuration.Record(ctx, duration.Milliseconds(), metric.WithAttributes(attrs...))
	}
}

func (m *tableMetrics) recordAttemptTimeout(ctx context.Context) {
	if m == nil || m.attemptTimeouts == nil {
		return
	}
	m.attemptTimeouts.Add(ctx, 1)
}

func (m *tableMetrics) recordDeadlock(ctx context.Context, cycleLen int) {
	if m == nil || m.deadlockCount == nil {
		return
	}
	m.deadlockCount.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("uselock.cycle_length", cycleLen),
	))
}

func metricResultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if IsDeadlock(err) {
		return "deadlock"
	}
	return "error"
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil {
		return
	}
	logger.Warn("metric.init_failed", "metric", name, "error", err)
}
