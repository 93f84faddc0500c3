package beacon

import (
	"github.com/penshort/beacon/internal/clock"
	"github.com/penshort/beacon/internal/config"
	"github.com/penshort/beacon/internal/content"
	"github.com/penshort/beacon/internal/delivery"
	"github.com/penshort/beacon/internal/metrics"
	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/storage"
)

// Re-exported record and collaborator types.
type (
	Config           = config.SDK
	Event            = model.Event
	Segmentation     = model.Segmentation
	UserDetails      = model.UserDetails
	Feature          = model.Feature
	Content          = model.Content
	BehaviorSettings = model.BehaviorSettings
	Request          = model.Request
	Attempt          = delivery.Attempt
	Transport        = delivery.Transport
	Displayer        = content.Displayer
	DisplayerFunc    = content.DisplayerFunc
	Clock            = clock.Clock
	Store            = storage.Store
	Recorder         = metrics.Recorder
)

// NewSegmentation builds a Segmentation from alternating keys and values.
func NewSegmentation(pairs ...any) *Segmentation {
	return model.NewSegmentation(pairs...)
}

// SegmentationFromMap builds a Segmentation from m with keys in sorted order.
func SegmentationFromMap(m map[string]any) *Segmentation {
	return model.SegmentationFromMap(m)
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	return config.Defaults()
}

// Queues is a snapshot of both local queues.
type Queues struct {
	Events   []Event   `json:"events"`
	Requests []Request `json:"requests"`
}
