package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncEventRecorded is a no-op.
func (n *NoopRecorder) IncEventRecorded(status string) {}

// ObserveFlushBatchSize is a no-op.
func (n *NoopRecorder) ObserveFlushBatchSize(size int) {}

// IncRequestEnqueued is a no-op.
func (n *NoopRecorder) IncRequestEnqueued(kind string) {}

// IncDelivery is a no-op.
func (n *NoopRecorder) IncDelivery(outcome string) {}

// ObserveDeliveryDuration is a no-op.
func (n *NoopRecorder) ObserveDeliveryDuration(duration time.Duration) {}

// SetRequestQueueDepth is a no-op.
func (n *NoopRecorder) SetRequestQueueDepth(depth int64) {}

// IncContentFetch is a no-op.
func (n *NoopRecorder) IncContentFetch(outcome string) {}

// IncIngest is a no-op.
func (n *NoopRecorder) IncIngest(status string) {}
