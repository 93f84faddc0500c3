package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/penshort/beacon/internal/model"
)

// Behavior applies behavior-settings allow and deny lists.
type Behavior struct {
	mu       sync.RWMutex
	settings model.BehaviorSettings
	compiled compiled
}

type set map[string]struct{}

func newSet(items []string) set {
	if items == nil {
		return nil
	}
	s := make(set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s set) has(k string) bool {
	_, ok := s[k]
	return ok
}

type compiled struct {
	eventBlack, eventWhite set
	segBlack, segWhite     set
	evSegBlack, evSegWhite map[string]set
	userBlack, userWhite   set
	journey                set
}

// NewBehavior returns a Behavior applying s.
func NewBehavior(s model.BehaviorSettings) *Behavior {
	b := &Behavior{}
	b.Update(s)
	return b
}

// Update replaces the active settings.
func (b *Behavior) Update(s model.BehaviorSettings) {
	c := compiled{
		eventBlack: newSet(s.EventBlacklist),
		eventWhite: newSet(s.EventWhitelist),
		segBlack:   newSet(s.SegmentationBlacklist),
		segWhite:   newSet(s.SegmentationWhitelist),
		userBlack:  newSet(s.UserPropertyBlacklist),
		userWhite:  newSet(s.UserPropertyWhitelist),
		journey:    newSet(s.JourneyTriggerEvents),
		evSegBlack: make(map[string]set, len(s.EventSegmentationBlacklist)),
		evSegWhite: make(map[string]set, len(s.EventSegmentationWhitelist)),
	}
	for k, v := range s.EventSegmentationBlacklist {
		c.evSegBlack[k] = newSet(v)
	}
	for k, v := range s.EventSegmentationWhitelist {
		c.evSegWhite[k] = newSet(v)
	}

	b.mu.Lock()
	b.settings = s
	b.compiled = c
	b.mu.Unlock()
}

// Settings returns the active settings.
func (b *Behavior) Settings() model.BehaviorSettings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// EventAllowed applies the event deny list, then the allow list.
// Internal keys are never subject to either.
func (b *Behavior) EventAllowed(key string) bool {
	if model.IsInternalKey(key) {
		return true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.compiled.eventBlack.has(key) {
		return false
	}
	if b.compiled.eventWhite != nil && !b.compiled.eventWhite.has(key) {
		return false
	}
	return true
}

// IsJourneyTrigger reports whether key starts a content journey.
func (b *Behavior) IsJourneyTrigger(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.compiled.journey.has(key)
}

// FilterSegmentation returns a filtered copy of seg for an event keyed
// key. Global rules run first, then the rules for that exact key.
func (b *Behavior) FilterSegmentation(key string, seg *model.Segmentation) *model.Segmentation {
	if seg == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := seg.Clone()
	narrow(out, b.compiled.segBlack, b.compiled.segWhite)
	narrow(out, b.compiled.evSegBlack[key], b.compiled.evSegWhite[key])
	return out
}

// narrow removes black-listed keys and, when white is configured,
// everything not in it.
func narrow(seg *model.Segmentation, black, white set) {
	for _, k := range seg.Keys() {
		if black.has(k) || (white != nil && !white.has(k)) {
			seg.Delete(k)
		}
	}
}

// UserPropertyAllowed reports whether a top-level profile field may be sent.
func (b *Behavior) UserPropertyAllowed(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.userAllowedLocked(name)
}

func (b *Behavior) userAllowedLocked(name string) bool {
	if b.compiled.userBlack.has(name) {
		return false
	}
	return b.compiled.userWhite == nil || b.compiled.userWhite.has(name)
}

// CustomPropertyAllowed reports whether a custom profile key may be sent.
// Lists may name it as "key" or "custom.key"; "custom" covers all keys.
func (b *Behavior) CustomPropertyAllowed(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.customAllowedLocked(key)
}

func (b *Behavior) customAllowedLocked(key string) bool {
	key = strings.TrimPrefix(key, model.UserCustom+".")
	qualified := model.UserCustom + "." + key
	black, white := b.compiled.userBlack, b.compiled.userWhite
	if black.has(key) || black.has(qualified) || black.has(model.UserCustom) {
		return false
	}
	if white == nil {
		return true
	}
	return white.has(key) || white.has(qualified) || white.has(model.UserCustom)
}

// FilterUserDetails clears the fields of d that the property lists reject.
func (b *Behavior) FilterUserDetails(d *model.UserDetails) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	fields := []struct {
		name string
		ptr  *string
	}{
		{model.UserName, &d.Name},
		{model.UserUsername, &d.Username},
		{model.UserEmail, &d.Email},
		{model.UserOrganization, &d.Organization},
		{model.UserPhone, &d.Phone},
		{model.UserPicture, &d.Picture},
		{model.UserGender, &d.Gender},
	}
	for _, f := range fields {
		if *f.ptr != "" && !b.userAllowedLocked(f.name) {
			*f.ptr = ""
		}
	}
	if d.BirthYear != 0 && !b.userAllowedLocked(model.UserBirthYear) {
		d.BirthYear = 0
	}
	for k := range d.Custom {
		if !b.customAllowedLocked(k) {
			delete(d.Custom, k)
		}
	}
	if len(d.Custom) == 0 {
		d.Custom = nil
	}
}

// ParseBehaviorSettings decodes settings as served by the collector. Both
// the bare object and the {"c": {...}} envelope are accepted.
func ParseBehaviorSettings(data []byte) (model.BehaviorSettings, error) {
	var envelope struct {
		C *model.BehaviorSettings `json:"c"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return model.BehaviorSettings{}, fmt.Errorf("parse behavior settings: %w", err)
	}
	if envelope.C != nil {
		return *envelope.C, nil
	}
	var s model.BehaviorSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return model.BehaviorSettings{}, fmt.Errorf("parse behavior settings: %w", err)
	}
	return s, nil
}

// Merge returns base with every list configured in over replacing base's.
func Merge(base, over model.BehaviorSettings) model.BehaviorSettings {
	out := base
	pick := func(dst *[]string, src []string) {
		if src != nil {
			*dst = src
		}
	}
	pick(&out.EventBlacklist, over.EventBlacklist)
	pick(&out.EventWhitelist, over.EventWhitelist)
	pick(&out.SegmentationBlacklist, over.SegmentationBlacklist)
	pick(&out.SegmentationWhitelist, over.SegmentationWhitelist)
	pick(&out.UserPropertyBlacklist, over.UserPropertyBlacklist)
	pick(&out.UserPropertyWhitelist, over.UserPropertyWhitelist)
	pick(&out.JourneyTriggerEvents, over.JourneyTriggerEvents)
	if over.EventSegmentationBlacklist != nil {
		out.EventSegmentationBlacklist = over.EventSegmentationBlacklist
	}
	if over.EventSegmentationWhitelist != nil {
		out.EventSegmentationWhitelist = over.EventSegmentationWhitelist
	}
	return out
}
