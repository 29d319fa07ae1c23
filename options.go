package uselock

import (
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
	"pkt.systems/uselock/internal/clock"
)

const (
	// DefaultAttemptInterval bounds a single blocking acquisition attempt.
	// Shorter intervals detect deadlocks sooner at the cost of more retry
	// passes; longer intervals waste less CPU on contended locks.
	DefaultAttemptInterval = 100 * time.Millisecond
)

// Option customises locks, handles, and wait tables at construction time.
type Option func(*options)

type options struct {
	logger          pslog.Logger
	attemptInterval time.Duration
	clk             clock.Clock
	meterProvider   metric.MeterProvider
}

func newOptions(opts []Option) options {
	o := options{
		attemptInterval: DefaultAttemptInterval,
		clk:             clock.Real{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = ensureLogger(o.logger)
	if o.attemptInterval <= 0 {
		o.attemptInterval = DefaultAttemptInterval
	}
	if o.clk == nil {
		o.clk = clock.Real{}
	}
	return o
}

// WithLogger attaches a structured logger. When omitted, log entries are
// discarded. A logger carried on the operation context via
// pslog.ContextWithLogger takes precedence per call.
func WithLogger(logger pslog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithAttemptInterval overrides DefaultAttemptInterval for bounded
// acquisition attempts. Non-positive values select the default.
func WithAttemptInterval(d time.Duration) Option {
	return func(o *options) {
		o.attemptInterval = d
	}
}

// WithMeterProvider selects the OpenTelemetry meter provider backing the
// wait table's instruments. When omitted, the global provider registered with
// otel.SetMeterProvider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// withClock injects a controllable clock. Test hook.
func withClock(c clock.Clock) Option {
	return func(o *options) {
		o.clk = c
	}
}

var (
	noopOnce   sync.Once
	noopLogger pslog.Logger
)

func ensureLogger(l pslog.Logger) pslog.Logger {
	if l != nil {
		return l
	}
	noopOnce.Do(func() {
		noopLogger = pslog.NewWithOptions(io.Discard, pslog.Options{
			Mode:     pslog.ModeStructured,
			MinLevel: pslog.Disabled,
		})
	})
	return noopLogger
}
