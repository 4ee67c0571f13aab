package jobs

import (
	"herald/core/events"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type options struct {
	logger        *zap.Logger
	bus           events.Bus
	tracer        trace.Tracer
	retries       int
	recoverPanics bool
}

func defaultOptions() options {
	return options{
		retries:       DefaultRetries,
		recoverPanics: true,
	}
}

// Option configures a dispatcher at Start.
type Option func(*options)

// WithLogger sets the logger used for worker diagnostics.
// Defaults to logger.Logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEventBus publishes job outcome events on bus.
func WithEventBus(bus events.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// WithTracer sets the tracer for handler spans.
// Defaults to otel.Tracer("herald-dispatcher").
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithDefaultRetries sets the retry budget given to jobs created by
// Hook.Submit. Negative values are treated as zero.
func WithDefaultRetries(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.retries = n
	}
}

// WithPanicRecovery controls whether a panicking handler is treated as a
// failed attempt (the default) or terminates the worker, which Stop then
// reports as ErrJoin.
func WithPanicRecovery(enabled bool) Option {
	return func(o *options) { o.recoverPanics = enabled }
}

func (o *options) tracerOrDefault() trace.Tracer {
	if o.tracer != nil {
		return o.tracer
	}
	return otel.Tracer("herald-dispatcher")
}
