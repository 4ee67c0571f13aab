package jobs

import (
	"sync"

	infinity "github.com/Code-Hex/go-infinity-channel"
)

// channel is the unbounded FIFO between producers and the worker. Sends
// never block on capacity; after close they fail with ErrSend.
type channel[T any] struct {
	mu     sync.RWMutex
	closed bool
	queue  *infinity.Channel[Job[T]]
}

func newChannel[T any]() *channel[T] {
	return &channel[T]{queue: infinity.NewChannel[Job[T]]()}
}

func (c *channel[T]) send(job Job[T]) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrSend
	}
	c.queue.In() <- job
	return nil
}

func (c *channel[T]) out() <-chan Job[T] {
	return c.queue.Out()
}

func (c *channel[T]) len() int {
	return c.queue.Len()
}

// close stops accepting jobs and discards whatever is still queued,
// returning how many non-sentinel jobs were dropped. Only the first call
// does any work.
func (c *channel[T]) close() int {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	c.closed = true
	c.queue.Close()
	c.mu.Unlock()

	discarded := 0
	for job := range c.queue.Out() {
		if !job.IsExit() {
			discarded++
		}
	}
	return discarded
}
