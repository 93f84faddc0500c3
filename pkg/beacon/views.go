package beacon

import (
	"github.com/penshort/beacon/internal/model"
)

type viewState struct {
	id        string
	name      string
	startedAt int64 // unix ms
	// first is true until a view has been recorded in the current session.
	first bool
}

// RecordView records a page or screen view. The previous view, if any, is
// closed with its duration. Extra segmentation never overrides the view
// keys.
func (i *Instance) RecordView(name string, seg *Segmentation) {
	name = i.limits.Value(name)
	if name == "" {
		return
	}

	i.endView()

	now := i.clock.Now()
	i.mu.Lock()
	id := i.newID(now)
	prev := i.view.id
	first := i.view.first || i.view.id == ""
	i.mu.Unlock()

	s := model.NewSegmentation("name", name, "visit", 1)
	if first {
		s.Set("start", 1)
	}
	if seg != nil {
		for _, k := range seg.Keys() {
			if _, taken := s.Get(k); taken {
				continue
			}
			v, _ := seg.Get(k)
			s.Set(k, v)
		}
	}

	e := model.Event{Key: model.KeyView, Segmentation: s, ID: id, PVID: prev}
	if !i.record(i.ctx, e) {
		return
	}

	i.mu.Lock()
	i.view = viewState{id: id, name: name, startedAt: now.UnixMilli()}
	i.mu.Unlock()
}

// endView records the duration of the current view.
func (i *Instance) endView() {
	i.mu.Lock()
	v := i.view
	now := i.clock.Now().UnixMilli()
	i.view.name = ""
	i.mu.Unlock()
	if v.name == "" {
		return
	}
	i.record(i.ctx, model.Event{
		Key:          model.KeyView,
		Dur:          model.Float(float64(now-v.startedAt) / 1000),
		Segmentation: model.NewSegmentation("name", v.name),
	})
}
