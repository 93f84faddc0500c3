package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/storage"
)

// RequestQueue is the strict FIFO of requests awaiting delivery. Appends
// go to the tail; only the head is ever removed or rewritten.
type RequestQueue struct {
	mu       sync.Mutex
	kv       storage.KV
	max      int
	requests []model.Request
	logger   *slog.Logger
}

// NewRequestQueue restores the persisted queue from kv. max <= 0 means
// unbounded.
func NewRequestQueue(ctx context.Context, kv storage.KV, max int, logger *slog.Logger) *RequestQueue {
	q := &RequestQueue{
		kv:     kv,
		max:    max,
		logger: logger.With("component", "queue.requests"),
	}
	if err := load(ctx, kv, storage.KeyRequestQueue, &q.requests); err != nil {
		q.logger.Warn("starting with empty request queue", "error", err)
		q.requests = nil
	}
	return q
}

// Append adds r at the tail and returns how many old requests were evicted.
func (q *RequestQueue) Append(ctx context.Context, r model.Request) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.requests = append(q.requests, r)
	dropped := 0
	if q.max > 0 && len(q.requests) > q.max {
		dropped = len(q.requests) - q.max
		q.requests = append([]model.Request(nil), q.requests[dropped:]...)
		q.logger.Warn("request queue full, dropped oldest", "dropped", dropped)
	}
	q.persistLocked(ctx)
	return dropped
}

// Peek returns a copy of the head.
func (q *RequestQueue) Peek() (model.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.requests) == 0 {
		return model.Request{}, false
	}
	return q.requests[0].Clone(), true
}

// RemoveHead removes the head if it is still the request with id.
func (q *RequestQueue) RemoveHead(ctx context.Context, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.requests) == 0 || q.requests[0].ID != id {
		return false
	}
	q.requests = append([]model.Request(nil), q.requests[1:]...)
	q.persistLocked(ctx)
	return true
}

// UpdateHead replaces the head with r if the head still has r's id.
func (q *RequestQueue) UpdateHead(ctx context.Context, r model.Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.requests) == 0 || q.requests[0].ID != r.ID {
		return false
	}
	q.requests[0] = r.Clone()
	q.persistLocked(ctx)
	return true
}

// Replace swaps the whole queue for requests.
func (q *RequestQueue) Replace(ctx context.Context, requests []model.Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = make([]model.Request, len(requests))
	for i, r := range requests {
		q.requests[i] = r.Clone()
	}
	q.persistLocked(ctx)
}

// Len returns the number of queued requests.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Snapshot returns a copy of the queued requests, head first.
func (q *RequestQueue) Snapshot() []model.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Request, len(q.requests))
	for i, r := range q.requests {
		out[i] = r.Clone()
	}
	return out
}

func (q *RequestQueue) persistLocked(ctx context.Context) {
	save(ctx, q.kv, storage.KeyRequestQueue, q.requests, q.logger)
}
