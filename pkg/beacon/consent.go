package beacon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/penshort/beacon/internal/delivery"
	"github.com/penshort/beacon/internal/filter"
	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/storage"
)

// AddConsent grants features or feature groups. Changes are reported to
// the collector.
func (i *Instance) AddConsent(features ...string) {
	if i.isClosed() {
		return
	}
	i.sendConsent(i.consent.Add(i.ctx, features...))
}

// RemoveConsent revokes features or feature groups. Events queued while
// consent was held are flushed first; removing sessions ends the session.
func (i *Instance) RemoveConsent(features ...string) {
	if i.isClosed() {
		return
	}
	i.flush(i.ctx)
	changed := i.consent.Remove(i.ctx, features...)
	if _, ok := changed[model.FeatureSessions]; ok {
		i.endSession(i.ctx)
	}
	i.sendConsent(changed)
}

// HasConsent reports whether feature may be recorded.
func (i *Instance) HasConsent(feature string) bool {
	return i.consent.Has(model.Feature(feature))
}

// GroupFeatures registers name as an alias for features in consent calls.
func (i *Instance) GroupFeatures(name string, features ...string) {
	fs := make([]model.Feature, len(features))
	for n, f := range features {
		fs[n] = model.Feature(f)
	}
	i.consent.Group(name, fs...)
}

func (i *Instance) sendConsent(changed map[model.Feature]bool) {
	if len(changed) == 0 {
		return
	}
	data, err := json.Marshal(changed)
	if err != nil {
		i.logger.Warn("failed to encode consent", "error", err)
		return
	}
	i.enqueue(i.ctx, i.newRequest(model.KindConsent, map[string]string{
		model.ParamConsent: string(data),
	}))
}

// SetBehaviorSettings merges s over the locally configured settings and
// persists the result. The most recent call wins per list.
func (i *Instance) SetBehaviorSettings(s BehaviorSettings) {
	i.behavior.Update(filter.Merge(i.cfg.Behavior, s))
	data, err := json.Marshal(s)
	if err != nil {
		i.logger.Warn("failed to encode behavior settings", "error", err)
		return
	}
	if err := i.kv.Set(i.ctx, storage.KeyBehavior, string(data)); err != nil {
		i.logger.Warn("failed to persist behavior settings", "error", err)
	}
}

// BehaviorSettings returns the settings in effect.
func (i *Instance) BehaviorSettings() BehaviorSettings {
	return i.behavior.Settings()
}

// FetchBehaviorSettings loads settings from the collector and applies them.
func (i *Instance) FetchBehaviorSettings(ctx context.Context) error {
	params := i.identityParams()
	params.Set("method", "sc")
	resp, err := i.transport.Send(ctx, delivery.Prepared{
		Method: http.MethodGet,
		Path:   delivery.PathSettings,
		Params: delivery.Sign(params, i.cfg.Salt),
	})
	if err != nil {
		return fmt.Errorf("fetch behavior settings: %w", err)
	}
	if !delivery.IsValidBroad(resp.Status, resp.Body) {
		return fmt.Errorf("fetch behavior settings: %w", delivery.ErrInvalidResponse)
	}
	s, err := filter.ParseBehaviorSettings([]byte(resp.Body))
	if err != nil {
		return err
	}
	i.SetBehaviorSettings(s)
	i.logger.Debug("behavior settings updated")
	return nil
}
