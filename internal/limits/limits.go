// Package limits clamps records to the configured size limits.
// Oversized input is truncated, never rejected.
package limits

import (
	"sync"
	"unicode/utf8"

	"github.com/penshort/beacon/internal/config"
	"github.com/penshort/beacon/internal/model"
)

// Limits are the per-record size caps. Zero disables a cap.
type Limits struct {
	MaxKeyLength          int
	MaxValueSize          int
	MaxSegmentationValues int
	MaxBreadcrumbCount    int
}

// FromConfig reads the caps from cfg.
func FromConfig(cfg *config.SDK) Limits {
	return Limits{
		MaxKeyLength:          cfg.MaxKeyLength,
		MaxValueSize:          cfg.MaxValueSize,
		MaxSegmentationValues: cfg.MaxSegmentationValues,
		MaxBreadcrumbCount:    cfg.MaxBreadcrumbCount,
	}
}

// Key truncates s to MaxKeyLength runes.
func (l Limits) Key(s string) string {
	return truncate(s, l.MaxKeyLength)
}

// Value truncates s to MaxValueSize runes.
func (l Limits) Value(s string) string {
	return truncate(s, l.MaxValueSize)
}

// Event clamps e in place and reports whether anything was cut.
func (l Limits) Event(e *model.Event) bool {
	changed := false
	if k := l.Key(e.Key); k != e.Key {
		e.Key = k
		changed = true
	}
	if e.Segmentation != nil {
		seg, cut := l.Segmentation(e.Segmentation)
		e.Segmentation = seg
		changed = changed || cut
	}
	return changed
}

// Truncate shortens the key and segmentation of e without applying the
// entry cap. Callers filter between Truncate and Event.
func (l Limits) Truncate(e *model.Event) bool {
	uncapped := l
	uncapped.MaxSegmentationValues = 0
	return uncapped.Event(e)
}

// Segmentation returns a clamped copy of s. Keys beyond
// MaxSegmentationValues are dropped in insertion order. Keys that collide
// after truncation keep the later value.
func (l Limits) Segmentation(s *model.Segmentation) (*model.Segmentation, bool) {
	out := &model.Segmentation{}
	changed := false
	for _, k := range s.Keys() {
		v, _ := s.Get(k)
		tk := l.Key(k)
		if tk != k {
			changed = true
		}
		if _, exists := out.Get(tk); !exists && l.MaxSegmentationValues > 0 && out.Len() >= l.MaxSegmentationValues {
			changed = true
			continue
		}
		if str, ok := v.(string); ok {
			if tv := l.Value(str); tv != str {
				v = tv
				changed = true
			}
		}
		out.Set(tk, v)
	}
	return out, changed
}

// UserDetails clamps d in place and reports whether anything was cut.
func (l Limits) UserDetails(d *model.UserDetails) bool {
	changed := false
	for _, field := range []*string{
		&d.Name, &d.Username, &d.Email, &d.Organization, &d.Phone, &d.Gender,
	} {
		if t := l.Value(*field); t != *field {
			*field = t
			changed = true
		}
	}
	// Picture URLs may legitimately be long; they are capped at 4096.
	if t := truncate(d.Picture, 4096); t != d.Picture {
		d.Picture = t
		changed = true
	}
	if d.Custom != nil {
		custom, cut := l.Custom(d.Custom)
		d.Custom = custom
		changed = changed || cut
	}
	return changed
}

// Custom clamps a custom property map. Entries beyond
// MaxSegmentationValues are dropped in key order.
func (l Limits) Custom(m map[string]any) (map[string]any, bool) {
	seg, changed := l.Segmentation(model.SegmentationFromMap(m))
	return seg.Map(), changed
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// Breadcrumbs keeps the most recent log lines attached to error reports.
type Breadcrumbs struct {
	mu    sync.Mutex
	max   int
	lines []string
}

// NewBreadcrumbs returns a buffer holding at most max lines.
func NewBreadcrumbs(max int) *Breadcrumbs {
	return &Breadcrumbs{max: max}
}

// Add appends line, dropping the oldest when full.
func (b *Breadcrumbs) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if b.max > 0 && len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

// Lines returns a copy of the buffered lines, oldest first.
func (b *Breadcrumbs) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// Clear empties the buffer.
func (b *Breadcrumbs) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}
