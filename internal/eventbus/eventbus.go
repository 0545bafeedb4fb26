// Package eventbus provides a small in-process pub/sub bus used to fan
// out planning progress events to loggers and recorders.
package eventbus

import (
	"sync"
	"time"
)

// Event is any planning event published on the bus.
type Event interface{}

// PeriodStarted is published when the driver begins optimizing a period.
type PeriodStarted struct {
	Period int
	Start  time.Time
	Steps  int
}

// PeriodCompleted is published after a period's solve succeeds.
type PeriodCompleted struct {
	Period        int
	FinalSOC      float64
	MoneySaved    float64
	SolveDuration time.Duration
}

// RunCompleted is published once the full horizon has been optimized.
type RunCompleted struct {
	RunID      string
	Periods    int
	MoneySaved float64
}

// Bus implements non-blocking fan-out delivery to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// New creates a new Bus.
func New() *Bus { return &Bus{} }

// Publish sends the event to all subscribers. Slow subscribers miss
// events rather than block the planning loop.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes all subscriber channels and clears the list.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
