// Package filter decides which records may enter the event queue.
package filter

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/storage"
)

// Consent tracks per-feature consent for one instance.
// When consent is not required every feature is allowed.
type Consent struct {
	mu       sync.RWMutex
	required bool
	granted  map[model.Feature]bool
	groups   map[string][]model.Feature
	kv       storage.KV
	logger   *slog.Logger
}

// NewConsent loads persisted consent from kv. A corrupt record is logged
// and treated as no consent.
func NewConsent(ctx context.Context, kv storage.KV, required bool, logger *slog.Logger) *Consent {
	c := &Consent{
		required: required,
		granted:  make(map[model.Feature]bool),
		groups:   make(map[string][]model.Feature),
		kv:       kv,
		logger:   logger.With("component", "filter.consent"),
	}

	raw, ok, err := kv.Get(ctx, storage.KeyConsent)
	if err != nil {
		c.logger.Warn("failed to load consent", "error", err)
		return c
	}
	if ok {
		var stored map[model.Feature]bool
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			c.logger.Warn("discarding corrupt consent record", "error", err)
			return c
		}
		for f, v := range stored {
			if v {
				c.granted[f] = true
			}
		}
	}
	return c
}

// Required reports whether consent gates recording.
func (c *Consent) Required() bool {
	return c.required
}

// Has reports whether data for f may be recorded.
func (c *Consent) Has(f model.Feature) bool {
	if !c.required {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.granted[f]
}

// Group registers name as an alias for features.
func (c *Consent) Group(name string, features ...model.Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[name] = append([]model.Feature(nil), features...)
}

// Add grants the named features or groups and returns the features whose
// state changed.
func (c *Consent) Add(ctx context.Context, names ...string) map[model.Feature]bool {
	return c.update(ctx, true, names)
}

// Remove revokes the named features or groups and returns the features
// whose state changed.
func (c *Consent) Remove(ctx context.Context, names ...string) map[model.Feature]bool {
	return c.update(ctx, false, names)
}

func (c *Consent) update(ctx context.Context, grant bool, names []string) map[model.Feature]bool {
	c.mu.Lock()
	changed := make(map[model.Feature]bool)
	for _, f := range c.expandLocked(names) {
		if c.granted[f] != grant {
			changed[f] = grant
		}
		if grant {
			c.granted[f] = true
		} else {
			delete(c.granted, f)
		}
	}
	c.mu.Unlock()

	if len(changed) > 0 {
		c.persist(ctx)
	}
	return changed
}

// Reset drops every grant.
func (c *Consent) Reset(ctx context.Context) {
	c.mu.Lock()
	c.granted = make(map[model.Feature]bool)
	c.mu.Unlock()
	c.persist(ctx)
}

// Snapshot returns the state of every known feature.
func (c *Consent) Snapshot() map[model.Feature]bool {
	out := make(map[model.Feature]bool, len(model.Features))
	for _, f := range model.Features {
		out[f] = c.Has(f)
	}
	return out
}

// Granted returns the explicitly granted features, sorted.
func (c *Consent) Granted() []model.Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Feature, 0, len(c.granted))
	for f := range c.granted {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Consent) expandLocked(names []string) []model.Feature {
	var out []model.Feature
	for _, name := range names {
		if group, ok := c.groups[name]; ok {
			out = append(out, group...)
			continue
		}
		out = append(out, model.Feature(name))
	}
	return out
}

func (c *Consent) persist(ctx context.Context) {
	c.mu.RLock()
	data, err := json.Marshal(c.granted)
	c.mu.RUnlock()
	if err != nil {
		c.logger.Warn("failed to encode consent", "error", err)
		return
	}
	if err := c.kv.Set(ctx, storage.KeyConsent, string(data)); err != nil {
		c.logger.Warn("failed to persist consent", "error", err)
	}
}

// FeatureFor maps an event key to the consent bucket that gates it.
func FeatureFor(key string) model.Feature {
	switch key {
	case model.KeyView:
		return model.FeatureViews
	case model.KeyOrientation:
		return model.FeatureUsers
	case model.KeyStarRating:
		return model.FeatureStarRating
	case model.KeyNPS, model.KeySurvey:
		return model.FeatureFeedback
	case model.KeyAction:
		return model.FeatureClicks
	default:
		return model.FeatureEvents
	}
}
