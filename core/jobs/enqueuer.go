package jobs

import "herald/core/metrics"

// Enqueuer is the producer side of the dispatcher handed to collaborators
// that trigger background work (the web layer, other jobs).
type Enqueuer[T any] interface {
	// Submit enqueues a job and returns immediately. It fails with ErrSend
	// once the dispatcher has been stopped.
	Submit(name string, payload *T) error
}

// Hook is a producer endpoint of a dispatcher. Clones are cheap and all feed
// the same worker.
type Hook[T any] struct {
	ch      *channel[T]
	retries int
}

// Clone returns an independent handle onto the same dispatch channel.
func (h *Hook[T]) Clone() *Hook[T] {
	c := *h
	return &c
}

// Submit enqueues a new job with the dispatcher's default retry budget.
func (h *Hook[T]) Submit(name string, payload *T) error {
	return h.SubmitJob(NewJobWithRetries(name, payload, h.retries))
}

// SubmitJob enqueues a prepared job. Submitting a job named ExitJobName
// stops the worker like Stop does, after which every send fails with ErrSend.
// The sentinel is not counted as a submission.
func (h *Hook[T]) SubmitJob(job Job[T]) error {
	if err := h.ch.send(job); err != nil {
		return err
	}
	if !job.IsExit() {
		metrics.IncrementSubmitted(job.Name())
	}
	return nil
}

// requeue puts a job back on the tail of the channel without counting it as
// a fresh submission.
func (h *Hook[T]) requeue(job Job[T]) error {
	return h.ch.send(job)
}
