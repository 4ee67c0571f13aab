package jobs

import (
	"context"

	"herald/core/events"
)

// Topics the dispatcher publishes on when an event bus is configured.
const (
	JobSucceededEventType = "job.succeeded"
	JobRetriedEventType   = "job.retried"
	JobFailedEventType    = "job.failed"
	JobDroppedEventType   = "job.dropped"
)

// JobEvent describes the outcome of one worker step for a job.
type JobEvent struct {
	Type    string
	Name    string
	ID      string
	Retries int
	Err     string
}

func (e JobEvent) EventType() string { return e.Type }

func publish[T any](bus events.Bus, typ string, job Job[T], err error) {
	if bus == nil {
		return
	}
	ev := JobEvent{Type: typ, Name: job.Name(), ID: job.ID(), Retries: job.Retries()}
	if err != nil {
		ev.Err = err.Error()
	}
	bus.Publish(context.Background(), typ, ev)
}
