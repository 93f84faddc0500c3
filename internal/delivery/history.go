package delivery

import (
	"sync"
	"time"

	"github.com/penshort/beacon/internal/model"
)

// Attempt records one delivery attempt for introspection.
type Attempt struct {
	RequestID string            `json:"request_id"`
	Kind      model.RequestKind `json:"kind"`
	Attempt   int               `json:"attempt"`
	Status    int               `json:"status,omitempty"`
	Outcome   Outcome           `json:"outcome"`
	Error     string            `json:"error,omitempty"`
	At        time.Time         `json:"at"`
	Duration  time.Duration     `json:"duration"`
}

// history is a bounded ring of recent attempts.
type history struct {
	mu      sync.Mutex
	max     int
	entries []Attempt
}

func newHistory(max int) *history {
	return &history{max: max}
}

func (h *history) add(a Attempt) {
	if h.max <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, a)
	if len(h.entries) > h.max {
		h.entries = append([]Attempt(nil), h.entries[len(h.entries)-h.max:]...)
	}
}

func (h *history) list() []Attempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Attempt(nil), h.entries...)
}
