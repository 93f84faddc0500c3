package beacon

import (
	"context"
	"encoding/json"

	"github.com/penshort/beacon/internal/model"
)

// AddEvent records e. Count defaults to 1. Oversized keys and values are
// truncated; events rejected by consent or behavior settings are dropped.
func (i *Instance) AddEvent(e Event) {
	i.record(i.ctx, e.Clone())
}

// StartEvent begins timing key. A second start for the same key is ignored.
func (i *Instance) StartEvent(key string) {
	key = i.limits.Key(key)
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.timed[key]; ok {
		i.logger.Debug("timed event already started", "key", key)
		return
	}
	i.timed[key] = i.clock.Now().UnixMilli()
}

// EndEvent ends timing key and records it with its duration.
func (i *Instance) EndEvent(key string) bool {
	return i.EndEventWith(Event{Key: key})
}

// EndEventWith ends timing e.Key and records e with its duration. It
// reports false when no matching StartEvent is pending.
func (i *Instance) EndEventWith(e Event) bool {
	key := i.limits.Key(e.Key)
	i.mu.Lock()
	start, ok := i.timed[key]
	delete(i.timed, key)
	now := i.clock.Now().UnixMilli()
	i.mu.Unlock()
	if !ok {
		i.logger.Debug("timed event not started", "key", key)
		return false
	}

	out := e.Clone()
	out.Dur = model.Float(float64(now-start) / 1000)
	i.record(i.ctx, out)
	return true
}

// CancelEvent discards a pending timed event.
func (i *Instance) CancelEvent(key string) bool {
	key = i.limits.Key(key)
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.timed[key]
	delete(i.timed, key)
	return ok
}

// record runs e through limits and filters, stamps it and either queues
// it or, for journey triggers, sends it as its own request.
func (i *Instance) record(ctx context.Context, e model.Event) bool {
	if i.isClosed() {
		return false
	}
	if e.Key == "" {
		i.metrics.IncEventRecorded("invalid")
		i.logger.Debug("event without key dropped")
		return false
	}

	i.limits.Truncate(&e)
	if !i.filter.Apply(&e) {
		i.metrics.IncEventRecorded("filtered")
		i.logger.Debug("event filtered", "key", e.Key)
		return false
	}
	i.limits.Event(&e)

	i.mu.Lock()
	ts := i.nextTimestampLocked()
	if e.ID == "" {
		e.ID = i.newID(i.clock.Now())
	}
	if e.Key != model.KeyView && i.view.id != "" {
		e.CVID = i.view.id
	}
	i.mu.Unlock()
	e.Stamp(ts)

	if i.behavior.IsJourneyTrigger(e.Key) {
		i.sendTrigger(ctx, e)
		return true
	}

	if dropped := i.events.Add(ctx, e); dropped > 0 {
		i.metrics.IncEventRecorded("evicted")
	}
	i.metrics.IncEventRecorded("queued")
	return true
}

// sendTrigger flushes what is queued, then appends e alone in a request
// marked as a journey trigger and starts delivery.
func (i *Instance) sendTrigger(ctx context.Context, e model.Event) {
	data, err := json.Marshal([]model.Event{e})
	if err != nil {
		i.logger.Warn("failed to encode trigger event", "key", e.Key, "error", err)
		return
	}

	i.flushMu.Lock()
	i.flushLocked(ctx)
	req := i.newRequest(model.KindEvents, map[string]string{model.ParamEvents: string(data)})
	req.Trigger = true
	i.enqueue(ctx, req)
	i.flushMu.Unlock()

	i.metrics.IncEventRecorded("trigger")
	i.logger.Debug("journey trigger queued", "key", e.Key, "request_id", req.ID)
	i.kick()
}

// Flush moves every queued event into requests of at most
// MaxEventsPerRequest events. It returns the number of requests created.
func (i *Instance) Flush(ctx context.Context) int {
	if i.isClosed() {
		return 0
	}
	return i.flush(ctx)
}

func (i *Instance) flush(ctx context.Context) int {
	i.flushMu.Lock()
	defer i.flushMu.Unlock()
	return i.flushLocked(ctx)
}

func (i *Instance) flushLocked(ctx context.Context) int {
	created := 0
	for {
		batch := i.events.Drain(ctx, i.cfg.MaxEventsPerRequest)
		if len(batch) == 0 {
			return created
		}
		data, err := json.Marshal(batch)
		if err != nil {
			i.logger.Warn("failed to encode events, batch dropped", "events", len(batch), "error", err)
			continue
		}
		i.enqueue(ctx, i.newRequest(model.KindEvents, map[string]string{model.ParamEvents: string(data)}))
		i.metrics.ObserveFlushBatchSize(len(batch))
		created++
	}
}
