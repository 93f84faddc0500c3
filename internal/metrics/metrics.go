// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the SDK and the collector.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Event queue metrics
	IncEventRecorded(status string) // status: "accepted", "filtered", "dropped"
	ObserveFlushBatchSize(size int)

	// Delivery metrics
	IncRequestEnqueued(kind string)
	IncDelivery(outcome string) // outcome: "success", "discarded", "retry", "exhausted"
	ObserveDeliveryDuration(duration time.Duration)
	SetRequestQueueDepth(depth int64)

	// Journey content metrics
	IncContentFetch(outcome string) // outcome: "success", "invalid", "error", "exhausted"

	// Collector metrics
	IncIngest(status string) // status: "accepted", "rejected"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
