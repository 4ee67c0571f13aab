package jobs

import (
	"context"
	"fmt"
	"time"

	"herald/core/events"
	"herald/core/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// worker drains the dispatch channel on a single goroutine. Handlers run one
// at a time, in channel order.
type worker[T any] struct {
	registry      *Registry[T]
	ch            *channel[T]
	hook          *Hook[T]
	log           *zap.Logger
	bus           events.Bus
	tracer        trace.Tracer
	recoverPanics bool
}

// run returns when the exit sentinel arrives or the channel is closed.
// Queued jobs behind the sentinel are left for Stop to discard.
func (w *worker[T]) run(ctx context.Context) {
	w.log.Info("Dispatcher worker started", zap.Strings("handlers", w.registry.Names()))
	for job := range w.ch.out() {
		metrics.SetQueueDepth(w.ch.len())
		if job.IsExit() {
			w.log.Info("Exit received, dispatcher worker stopping")
			return
		}
		w.process(ctx, job)
	}
	w.log.Warn("Dispatch channel closed, dispatcher worker stopping")
}

func (w *worker[T]) process(ctx context.Context, job Job[T]) {
	fields := []zap.Field{zap.String("job", job.Name()), zap.String("job_id", job.ID())}

	handler := w.registry.GetHandler(job.Name())
	if handler == nil {
		w.log.Warn("No handler registered for job", fields...)
		metrics.RecordOutcome(job.Name(), metrics.StatusDropped)
		publish(w.bus, JobDroppedEventType, job, nil)
		return
	}

	err := w.invoke(ctx, handler, job)
	if err == nil {
		w.log.Debug("Job completed", fields...)
		metrics.RecordOutcome(job.Name(), metrics.StatusSucceeded)
		publish(w.bus, JobSucceededEventType, job, nil)
		return
	}

	fields = append(fields, zap.Error(err))
	if job.Retries() == 0 {
		w.log.Error("Job failed permanently", fields...)
		metrics.RecordOutcome(job.Name(), metrics.StatusFailed)
		publish(w.bus, JobFailedEventType, job, err)
		return
	}

	next := job.retry()
	if sendErr := w.hook.requeue(next); sendErr != nil {
		w.log.Error("Failed to requeue job, dropping it", append(fields, zap.NamedError("send_error", sendErr))...)
		metrics.RecordOutcome(job.Name(), metrics.StatusFailed)
		publish(w.bus, JobFailedEventType, job, err)
		return
	}
	w.log.Warn("Job failed, retrying", append(fields, zap.Int("retries_remaining", next.Retries()))...)
	metrics.RecordOutcome(job.Name(), metrics.StatusRetried)
	publish(w.bus, JobRetriedEventType, next, err)
}

// invoke runs one handler attempt under a span. With panic recovery on, a
// panic becomes a ProcessingError; otherwise it unwinds the worker.
func (w *worker[T]) invoke(ctx context.Context, h Handler[T], job Job[T]) (err error) {
	ctx, span := w.tracer.Start(ctx, "Job.Handle: "+job.Name(), trace.WithAttributes(
		attribute.String("job.name", job.Name()),
		attribute.String("job.id", job.ID()),
		attribute.Int("job.retries", job.Retries()),
	))
	start := time.Now()
	defer func() {
		metrics.ObserveDuration(job.Name(), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if w.recoverPanics {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Panic recovered in job handler",
					zap.String("job", job.Name()),
					zap.String("job_id", job.ID()),
					zap.Any("panic", r),
				)
				err = NewProcessingError(fmt.Sprintf("panic in handler %s: %v", job.Name(), r), nil)
			}
		}()
	}

	return h.Handle(ctx, job.Payload())
}
