// Package events is a small in-process pub/sub bus built on channels.
// Topics are strings; payloads implement TypedEvent.
package events

import (
	"context"
	"sync"

	herrors "herald/core/errors"
)

// DefaultBuffer is the per-subscriber channel capacity used by New.
const DefaultBuffer = 16

// TypedEvent is implemented by every payload published on the bus.
type TypedEvent interface {
	EventType() string
}

// Bus fans published events out to topic subscribers.
// Slow subscribers lose events rather than block publishers.
type Bus interface {
	Subscribe(topic string) (<-chan TypedEvent, func(), error)
	Publish(ctx context.Context, topic string, payload TypedEvent) int
	Close()
}

type bus struct {
	mu     sync.RWMutex
	topics map[string]map[chan TypedEvent]struct{}
	buffer int
	closed bool
}

// New returns a new event bus instance.
func New() Bus {
	return NewWithBuffer(DefaultBuffer)
}

// NewWithBuffer returns a bus whose subscriber channels hold up to n events.
func NewWithBuffer(n int) Bus {
	if n < 0 {
		n = 0
	}
	return &bus{topics: make(map[string]map[chan TypedEvent]struct{}), buffer: n}
}

// Subscribe registers a new subscriber on topic. The returned cancel func
// unsubscribes and closes the channel; it is safe to call more than once.
func (b *bus) Subscribe(topic string) (<-chan TypedEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, func() {}, herrors.Wrap(herrors.ErrClosed, "subscribe "+topic)
	}
	ch := make(chan TypedEvent, b.buffer)
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[chan TypedEvent]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.topics[topic]; ok {
			if _, exists := subs[ch]; exists {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
		}
	}
	return ch, cancel, nil
}

// Publish delivers payload to every subscriber of topic that has room and
// returns how many received it.
func (b *bus) Publish(ctx context.Context, topic string, payload TypedEvent) int {
	// Sending under the read lock keeps cancel/Close from closing a channel
	// mid-send; every send is non-blocking so the lock is held briefly.
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for ch := range b.topics[topic] {
		select {
		case <-ctx.Done():
			return delivered
		default:
		}
		select {
		case ch <- payload:
			delivered++
		default:
		}
	}
	return delivered
}

// Close closes every subscriber channel. Later subscriptions fail.
func (b *bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.topics {
		for ch := range subs {
			close(ch)
		}
		delete(b.topics, topic)
	}
}
