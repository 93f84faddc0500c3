package beacon

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/storage"
)

// sessionCookieTimeout is how long a persisted session may be resumed
// after the last activity.
const sessionCookieTimeout = 30 * time.Minute

type sessionState struct {
	active     bool
	start      int64 // unix ms
	lastUpdate int64 // unix ms of the last reported duration
}

type storedSession struct {
	Start int64 `json:"start"`
	Last  int64 `json:"last"`
}

// BeginSession starts a session. It is a no-op while one is active or
// when sessions consent is missing.
func (i *Instance) BeginSession() {
	if i.isClosed() || !i.consent.Has(model.FeatureSessions) {
		return
	}
	now := i.clock.Now().UnixMilli()
	i.mu.Lock()
	if i.session.active {
		i.mu.Unlock()
		return
	}
	i.session = sessionState{active: true, start: now, lastUpdate: now}
	i.view.first = true
	i.mu.Unlock()

	i.enqueue(i.ctx, i.newRequest(model.KindBeginSession, map[string]string{
		model.ParamBeginSession: "1",
	}))
	i.persistSession(i.ctx)
}

// SessionDuration reports the time elapsed since the previous report.
func (i *Instance) SessionDuration() {
	if i.isClosed() {
		return
	}
	now := i.clock.Now().UnixMilli()
	i.mu.Lock()
	if !i.session.active {
		i.mu.Unlock()
		return
	}
	secs := (now - i.session.lastUpdate) / 1000
	if secs <= 0 {
		i.mu.Unlock()
		return
	}
	i.session.lastUpdate += secs * 1000
	i.mu.Unlock()

	i.enqueue(i.ctx, i.newRequest(model.KindSessionDuration, map[string]string{
		model.ParamSessionDuration: strconv.FormatInt(secs, 10),
	}))
	i.persistSession(i.ctx)
}

// EndSession flushes queued events and ends the active session.
func (i *Instance) EndSession() {
	if i.isClosed() {
		return
	}
	i.endSession(i.ctx)
}

func (i *Instance) endSession(ctx context.Context) {
	i.mu.Lock()
	active := i.session.active
	i.mu.Unlock()
	if !active {
		return
	}

	i.endView()
	i.flush(ctx)

	now := i.clock.Now().UnixMilli()
	i.mu.Lock()
	secs := (now - i.session.lastUpdate) / 1000
	i.session = sessionState{}
	i.mu.Unlock()

	i.enqueue(ctx, i.newRequest(model.KindEndSession, map[string]string{
		model.ParamEndSession:      "1",
		model.ParamSessionDuration: strconv.FormatInt(secs, 10),
	}))
	if err := i.kv.Remove(ctx, storage.KeySession); err != nil {
		i.logger.Warn("failed to clear session", "error", err)
	}
	i.kick()
}

// SessionActive reports whether a session is running.
func (i *Instance) SessionActive() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.session.active
}

func (i *Instance) persistSession(ctx context.Context) {
	i.mu.Lock()
	s := storedSession{Start: i.session.start, Last: i.session.lastUpdate}
	i.mu.Unlock()
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := i.kv.Set(ctx, storage.KeySession, string(data)); err != nil {
		i.logger.Warn("failed to persist session", "error", err)
	}
}

// restoreSession resumes a persisted session that has not timed out.
func (i *Instance) restoreSession(ctx context.Context) {
	raw, ok, err := i.kv.Get(ctx, storage.KeySession)
	if err != nil || !ok {
		return
	}
	var s storedSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		i.logger.Warn("discarding corrupt session record", "error", err)
		i.kv.Remove(ctx, storage.KeySession)
		return
	}
	now := i.clock.Now().UnixMilli()
	if now-s.Last > sessionCookieTimeout.Milliseconds() {
		i.kv.Remove(ctx, storage.KeySession)
		return
	}
	i.mu.Lock()
	i.session = sessionState{active: true, start: s.Start, lastUpdate: s.Last}
	i.mu.Unlock()
	i.logger.Debug("resumed session", "started_at", s.Start)
}
