// Package model defines the records that flow through the SDK pipeline.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Internal event keys understood by the collector.
const (
	InternalPrefix = "[CLY]_"

	KeyView        = "[CLY]_view"
	KeyOrientation = "[CLY]_orientation"
	KeyStarRating  = "[CLY]_star_rating"
	KeyNPS         = "[CLY]_nps"
	KeySurvey      = "[CLY]_survey"
	KeyAction      = "[CLY]_action"
)

// IsInternalKey reports whether key is reserved by the SDK.
func IsInternalKey(key string) bool {
	return strings.HasPrefix(key, InternalPrefix)
}

// Event is a single telemetry record.
type Event struct {
	Key          string        `json:"key"`
	Count        int           `json:"count"`
	Sum          *float64      `json:"sum,omitempty"`
	Dur          *float64      `json:"dur,omitempty"`
	Segmentation *Segmentation `json:"segmentation,omitempty"`
	Timestamp    int64         `json:"timestamp"` // unix ms
	Hour         int           `json:"hour"`
	DOW          int           `json:"dow"`
	ID           string        `json:"id,omitempty"`
	PVID         string        `json:"pvid,omitempty"`
	CVID         string        `json:"cvid,omitempty"`
}

// Stamp fills timestamp, hour and day of week from ts (unix ms) and
// defaults Count to 1.
func (e *Event) Stamp(ts int64) {
	t := time.UnixMilli(ts)
	e.Timestamp = ts
	e.Hour = t.Hour()
	e.DOW = int(t.Weekday())
	if e.Count < 1 {
		e.Count = 1
	}
}

// Clone returns a deep copy of e.
func (e Event) Clone() Event {
	out := e
	if e.Sum != nil {
		v := *e.Sum
		out.Sum = &v
	}
	if e.Dur != nil {
		v := *e.Dur
		out.Dur = &v
	}
	out.Segmentation = e.Segmentation.Clone()
	return out
}

// Float returns a pointer to v, for Sum and Dur.
func Float(v float64) *float64 { return &v }

// Segmentation is an insertion-ordered map of scalar values.
// The zero value is empty and ready to use.
type Segmentation struct {
	keys   []string
	values map[string]any
}

// NewSegmentation builds a Segmentation from alternating key/value pairs.
// A trailing key without a value is ignored.
func NewSegmentation(pairs ...any) *Segmentation {
	s := &Segmentation{}
	for i := 0; i+1 < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok {
			continue
		}
		s.Set(k, pairs[i+1])
	}
	return s
}

// SegmentationFromMap builds a Segmentation from m with keys in sorted order.
func SegmentationFromMap(m map[string]any) *Segmentation {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := &Segmentation{}
	for _, k := range keys {
		s.Set(k, m[k])
	}
	return s
}

// Set assigns v to k. New keys are appended.
func (s *Segmentation) Set(k string, v any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	if _, ok := s.values[k]; !ok {
		s.keys = append(s.keys, k)
	}
	s.values[k] = v
}

// Get returns the value stored under k.
func (s *Segmentation) Get(k string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[k]
	return v, ok
}

// Delete removes k.
func (s *Segmentation) Delete(k string) {
	if s == nil {
		return
	}
	if _, ok := s.values[k]; !ok {
		return
	}
	delete(s.values, k)
	for i, key := range s.keys {
		if key == k {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (s *Segmentation) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Keys returns the keys in insertion order.
func (s *Segmentation) Keys() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.keys...)
}

// Map returns the entries as a plain map.
func (s *Segmentation) Map() map[string]any {
	out := make(map[string]any, s.Len())
	if s == nil {
		return out
	}
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Clone returns a copy of s. Cloning nil returns nil.
func (s *Segmentation) Clone() *Segmentation {
	if s == nil {
		return nil
	}
	out := &Segmentation{
		keys:   append([]string(nil), s.keys...),
		values: make(map[string]any, len(s.values)),
	}
	for k, v := range s.values {
		out.values[k] = v
	}
	return out
}

// MarshalJSON writes the entries in insertion order.
func (s *Segmentation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if s != nil {
		for i, k := range s.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(s.values[k])
			if err != nil {
				return nil, fmt.Errorf("marshal segmentation %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping its key order.
func (s *Segmentation) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("segmentation: expected object, got %v", tok)
	}

	*s = Segmentation{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("segmentation: expected key, got %v", tok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("segmentation %q: %w", key, err)
		}
		s.Set(key, normalizeNumber(raw))
	}
	_, err = dec.Token()
	return err
}

// normalizeNumber turns json.Number into int64 when integral, else float64.
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
