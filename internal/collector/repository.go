package collector

import (
	"context"
	"sync"
)

// DefaultListLimit caps List when the filter sets no limit.
const DefaultListLimit = 100

// Filter narrows List. Empty fields match everything.
type Filter struct {
	AppKey   string
	DeviceID string
	Kind     string
	Limit    int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f Filter) match(r *Record) bool {
	return (f.AppKey == "" || r.AppKey == f.AppKey) &&
		(f.DeviceID == "" || r.DeviceID == f.DeviceID) &&
		(f.Kind == "" || string(r.Kind) == f.Kind)
}

// Repository persists ingested records.
type Repository interface {
	// Save stores records. Saving a record id twice is a no-op.
	Save(ctx context.Context, records ...Record) error
	// List returns matching records oldest first.
	List(ctx context.Context, f Filter) ([]Record, error)
	Ping(ctx context.Context) error
	Close()
}

// MemoryRepository keeps records in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []Record
	seen    map[string]struct{}
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{seen: make(map[string]struct{})}
}

// Save implements Repository.
func (m *MemoryRepository) Save(_ context.Context, records ...Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if _, ok := m.seen[r.ID]; ok {
			continue
		}
		m.seen[r.ID] = struct{}{}
		m.records = append(m.records, r)
	}
	return nil
}

// List implements Repository. The newest Limit matches are returned.
func (m *MemoryRepository) List(_ context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for i := range m.records {
		if f.match(&m.records[i]) {
			out = append(out, m.records[i])
		}
	}
	if n := f.limit(); len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// Ping implements Repository.
func (m *MemoryRepository) Ping(context.Context) error { return nil }

// Close implements Repository.
func (m *MemoryRepository) Close() {}

// Open returns a PostgresRepository when databaseURL is set and a
// MemoryRepository otherwise.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
	if databaseURL == "" {
		return NewMemoryRepository(), nil
	}
	return NewPostgresRepository(ctx, databaseURL)
}
