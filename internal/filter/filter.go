package filter

import (
	"github.com/penshort/beacon/internal/model"
)

// Filter is the gate every event passes before entering the event queue:
// consent first, then the event lists, then segmentation rules.
type Filter struct {
	Consent  *Consent
	Behavior *Behavior
}

// New combines consent and behavior rules.
func New(consent *Consent, behavior *Behavior) *Filter {
	return &Filter{Consent: consent, Behavior: behavior}
}

// IsAllowed reports whether e may be recorded.
func (f *Filter) IsAllowed(e *model.Event) bool {
	if !f.Consent.Has(FeatureFor(e.Key)) {
		return false
	}
	return f.Behavior.EventAllowed(e.Key)
}

// Apply checks e and, when allowed, replaces its segmentation with the
// filtered copy. It reports whether e may be recorded.
func (f *Filter) Apply(e *model.Event) bool {
	if !f.IsAllowed(e) {
		return false
	}
	if e.Segmentation != nil {
		e.Segmentation = f.Behavior.FilterSegmentation(e.Key, e.Segmentation)
	}
	return true
}
