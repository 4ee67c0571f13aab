package jobs

import "github.com/google/uuid"

const (
	// DefaultRetries is how many times a failed job is resubmitted before it
	// is dropped for good.
	DefaultRetries = 10

	// ExitJobName is the reserved sentinel name that stops the worker.
	ExitJobName = "exit"
)

// Job is a unit of background work routed to the handler registered under
// its name. A Job is immutable: a retry produces a new Job with one fewer
// retry remaining.
type Job[T any] struct {
	id      uuid.UUID
	name    string
	payload *T
	retries int
}

// NewJob returns a job carrying payload (nil means no payload) with
// DefaultRetries retries.
func NewJob[T any](name string, payload *T) Job[T] {
	return NewJobWithRetries(name, payload, DefaultRetries)
}

// NewJobWithRetries is NewJob with an explicit retry budget. Negative
// budgets are treated as zero.
func NewJobWithRetries[T any](name string, payload *T, retries int) Job[T] {
	if retries < 0 {
		retries = 0
	}
	return Job[T]{
		id:      uuid.New(),
		name:    name,
		payload: payload,
		retries: retries,
	}
}

// exitJob builds the sentinel sent by Stop.
func exitJob[T any]() Job[T] {
	return Job[T]{id: uuid.New(), name: ExitJobName}
}

// ID identifies the job across its retries, for log and trace correlation.
func (j Job[T]) ID() string { return j.id.String() }

// Name returns the handler name.
func (j Job[T]) Name() string { return j.name }

// Payload returns the job payload, or nil when the job carries none.
// Handlers must treat it as read-only: every retry shares it.
func (j Job[T]) Payload() *T { return j.payload }

// Retries returns the number of resubmissions left.
func (j Job[T]) Retries() int { return j.retries }

// IsExit reports whether j is the worker stop sentinel.
func (j Job[T]) IsExit() bool { return j.name == ExitJobName }

// retry returns a copy of j with one fewer retry remaining.
func (j Job[T]) retry() Job[T] {
	j.retries--
	return j
}
