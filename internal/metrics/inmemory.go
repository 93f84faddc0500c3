package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	EventsRecorded map[string]uint64
	FlushBatches   uint64
	FlushedEvents  uint64

	RequestsEnqueued        map[string]uint64
	Deliveries              map[string]uint64
	DeliveryDurationCount   uint64
	DeliveryDurationTotalNs int64
	RequestQueueDepth       int64

	ContentFetches map[string]uint64
	Ingested       map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests and the collector.
type InMemoryRecorder struct {
	mu               sync.Mutex
	eventsRecorded   map[string]uint64
	requestsEnqueued map[string]uint64
	deliveries       map[string]uint64
	contentFetches   map[string]uint64
	ingested         map[string]uint64

	flushBatches            uint64
	flushedEvents           uint64
	deliveryDurationCount   uint64
	deliveryDurationTotalNs int64
	requestQueueDepth       int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		eventsRecorded:   make(map[string]uint64),
		requestsEnqueued: make(map[string]uint64),
		deliveries:       make(map[string]uint64),
		contentFetches:   make(map[string]uint64),
		ingested:         make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		EventsRecorded:          copyCounts(m.eventsRecorded),
		FlushBatches:            atomic.LoadUint64(&m.flushBatches),
		FlushedEvents:           atomic.LoadUint64(&m.flushedEvents),
		RequestsEnqueued:        copyCounts(m.requestsEnqueued),
		Deliveries:              copyCounts(m.deliveries),
		DeliveryDurationCount:   atomic.LoadUint64(&m.deliveryDurationCount),
		DeliveryDurationTotalNs: atomic.LoadInt64(&m.deliveryDurationTotalNs),
		RequestQueueDepth:       atomic.LoadInt64(&m.requestQueueDepth),
		ContentFetches:          copyCounts(m.contentFetches),
		Ingested:                copyCounts(m.ingested),
	}
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, label string) {
	m.mu.Lock()
	counts[label]++
	m.mu.Unlock()
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// IncEventRecorded counts an event by admission status.
func (m *InMemoryRecorder) IncEventRecorded(status string) {
	m.inc(m.eventsRecorded, status)
}

// ObserveFlushBatchSize records one flush batch.
func (m *InMemoryRecorder) ObserveFlushBatchSize(size int) {
	atomic.AddUint64(&m.flushBatches, 1)
	atomic.AddUint64(&m.flushedEvents, uint64(size))
}

// IncRequestEnqueued counts a request by kind.
func (m *InMemoryRecorder) IncRequestEnqueued(kind string) {
	m.inc(m.requestsEnqueued, kind)
}

// IncDelivery counts a delivery attempt by outcome.
func (m *InMemoryRecorder) IncDelivery(outcome string) {
	m.inc(m.deliveries, outcome)
}

// ObserveDeliveryDuration records delivery duration.
func (m *InMemoryRecorder) ObserveDeliveryDuration(duration time.Duration) {
	atomic.AddUint64(&m.deliveryDurationCount, 1)
	atomic.AddInt64(&m.deliveryDurationTotalNs, duration.Nanoseconds())
}

// SetRequestQueueDepth records the current request queue length.
func (m *InMemoryRecorder) SetRequestQueueDepth(depth int64) {
	atomic.StoreInt64(&m.requestQueueDepth, depth)
}

// IncContentFetch counts a content fetch by outcome.
func (m *InMemoryRecorder) IncContentFetch(outcome string) {
	m.inc(m.contentFetches, outcome)
}

// IncIngest counts a collector ingest by status.
func (m *InMemoryRecorder) IncIngest(status string) {
	m.inc(m.ingested, status)
}
