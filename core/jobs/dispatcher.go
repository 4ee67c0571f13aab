// Package jobs is an in-process background job dispatcher: a registry of
// named handlers, an unbounded FIFO channel fed by any number of producers,
// and a single worker goroutine that runs handlers and resubmits failed jobs
// to the tail of the channel until their retry budget is spent.
//
// Typical use:
//
//	reg := jobs.NewRegistry[Message]()
//	_ = reg.Register("welcome_email", sendWelcome)
//	d := jobs.Start(ctx, reg)
//	_ = d.Submit("welcome_email", &Message{To: "a@example.com"})
//	...
//	err := d.Stop(ctx)
package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"herald/core/logger"
	"herald/core/metrics"

	"go.uber.org/zap"
)

// Dispatcher is the control handle returned by Start. It owns the worker's
// lifecycle; producers should be given Hook clones.
type Dispatcher[T any] struct {
	hook *Hook[T]
	ch   *channel[T]
	log  *zap.Logger

	done    chan struct{}
	joinErr error // written before done is closed

	closeOnce sync.Once
	stopped   atomic.Bool
}

// Start freezes registry, spawns the worker and returns immediately.
// A nil registry behaves like an empty one. ctx supplies values to handler
// contexts; cancelling it does not stop the worker, only Stop does.
func Start[T any](ctx context.Context, registry *Registry[T], opts ...Option) *Dispatcher[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Logger
	}
	if registry == nil {
		registry = NewRegistry[T]()
	}
	registry.freeze()

	log := o.logger.With(zap.String("component", "dispatcher"))
	ch := newChannel[T]()
	hook := &Hook[T]{ch: ch, retries: o.retries}

	d := &Dispatcher[T]{
		hook: hook,
		ch:   ch,
		log:  log,
		done: make(chan struct{}),
	}
	w := &worker[T]{
		registry:      registry,
		ch:            ch,
		hook:          hook.Clone(),
		log:           log,
		bus:           o.bus,
		tracer:        o.tracerOrDefault(),
		recoverPanics: o.recoverPanics,
	}

	workerCtx := logger.WithComponentName(context.WithoutCancel(ctx), "dispatcher")
	metrics.WorkersRunning.Inc()
	go func() {
		defer close(d.done)
		defer metrics.WorkersRunning.Dec()
		defer d.close()
		defer func() {
			if r := recover(); r != nil {
				log.Error("Dispatcher worker terminated abnormally", zap.Any("panic", r))
				d.joinErr = fmt.Errorf("%w: panic: %v", ErrJoin, r)
			}
		}()
		w.run(workerCtx)
	}()
	return d
}

// Hook returns a new producer endpoint for this dispatcher.
func (d *Dispatcher[T]) Hook() *Hook[T] {
	return d.hook.Clone()
}

// Submit enqueues a job with the default retry budget.
func (d *Dispatcher[T]) Submit(name string, payload *T) error {
	return d.hook.Submit(name, payload)
}

// Done is closed when the worker goroutine has returned.
func (d *Dispatcher[T]) Done() <-chan struct{} {
	return d.done
}

// Stop sends the exit sentinel and waits for the worker to return. The
// dispatch channel is closed as soon as the worker returns, whether through
// Stop or through an exit job submitted by a producer; jobs still queued
// behind the sentinel are discarded. It returns ErrSend if Stop was already
// called and ErrJoin if the worker died abnormally or ctx expired before it
// returned.
func (d *Dispatcher[T]) Stop(ctx context.Context) error {
	if !d.stopped.CompareAndSwap(false, true) {
		return ErrSend
	}
	// Fails only when the worker already returned and closed the channel.
	_ = d.hook.requeue(exitJob[T]())

	select {
	case <-d.done:
		return d.joinErr
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrJoin, ctx.Err())
	}
}

func (d *Dispatcher[T]) close() {
	d.closeOnce.Do(func() {
		if n := d.ch.close(); n > 0 {
			d.log.Warn("Discarded jobs queued after exit", zap.Int("count", n))
		}
		metrics.SetQueueDepth(0)
	})
}
