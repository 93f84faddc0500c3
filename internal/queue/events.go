package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/storage"
)

// EventQueue is a bounded FIFO of events waiting to be flushed.
// When full, the oldest event is dropped.
type EventQueue struct {
	mu     sync.Mutex
	kv     storage.KV
	max    int
	events []model.Event
	logger *slog.Logger
}

// NewEventQueue restores the persisted queue from kv. max <= 0 means
// unbounded.
func NewEventQueue(ctx context.Context, kv storage.KV, max int, logger *slog.Logger) *EventQueue {
	q := &EventQueue{
		kv:     kv,
		max:    max,
		logger: logger.With("component", "queue.events"),
	}
	if err := load(ctx, kv, storage.KeyEventQueue, &q.events); err != nil {
		q.logger.Warn("starting with empty event queue", "error", err)
		q.events = nil
	}
	return q
}

// Add appends e and returns how many old events were evicted.
func (q *EventQueue) Add(ctx context.Context, e model.Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, e)
	dropped := 0
	if q.max > 0 && len(q.events) > q.max {
		dropped = len(q.events) - q.max
		q.events = append([]model.Event(nil), q.events[dropped:]...)
		q.logger.Warn("event queue full, dropped oldest", "dropped", dropped)
	}
	save(ctx, q.kv, storage.KeyEventQueue, q.events, q.logger)
	return dropped
}

// Drain removes and returns up to max events from the head. max <= 0
// drains everything.
func (q *EventQueue) Drain(ctx context.Context, max int) []model.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	n := len(q.events)
	if max > 0 && max < n {
		n = max
	}
	batch := append([]model.Event(nil), q.events[:n]...)
	q.events = append([]model.Event(nil), q.events[n:]...)
	save(ctx, q.kv, storage.KeyEventQueue, q.events, q.logger)
	return batch
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Snapshot returns a copy of the queued events.
func (q *EventQueue) Snapshot() []model.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Event, len(q.events))
	for i, e := range q.events {
		out[i] = e.Clone()
	}
	return out
}

// Clear drops every queued event.
func (q *EventQueue) Clear(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = nil
	save(ctx, q.kv, storage.KeyEventQueue, q.events, q.logger)
}
