package beacon

import (
	"encoding/json"
	"sync"

	"github.com/penshort/beacon/internal/model"
)

// UserDetails sends a profile update. Events queued before the call are
// flushed first so the collector sees them under the previous profile.
func (i *Instance) UserDetails(d UserDetails) {
	if i.isClosed() || !i.consent.Has(model.FeatureUsers) {
		return
	}
	if d.Custom != nil {
		custom := make(map[string]any, len(d.Custom))
		for k, v := range d.Custom {
			custom[k] = v
		}
		d.Custom = custom
	}
	i.limits.UserDetails(&d)
	i.behavior.FilterUserDetails(&d)
	if d.IsEmpty() {
		i.logger.Debug("user details empty after filtering")
		return
	}
	i.sendUserDetails(d)
}

func (i *Instance) sendUserDetails(d model.UserDetails) {
	data, err := json.Marshal(d)
	if err != nil {
		i.logger.Warn("failed to encode user details", "error", err)
		return
	}
	i.flush(i.ctx)
	i.enqueue(i.ctx, i.newRequest(model.KindUserDetails, map[string]string{
		model.ParamUserDetails: string(data),
	}))
}

// UserData returns the custom property builder. Changes accumulate until
// Save.
func (i *Instance) UserData() *UserData {
	return i.userData
}

// UserData accumulates custom user property modifications. Values are sent
// as given, numeric operators included; the collector applies the operators.
type UserData struct {
	inst   *Instance
	mu     sync.Mutex
	custom map[string]any
}

// Set sets key to value.
func (u *UserData) Set(key string, value any) *UserData {
	return u.put(key, u.clamp(value))
}

// Unset removes key from the profile.
func (u *UserData) Unset(key string) *UserData {
	return u.put(key, "")
}

// SetOnce sets key only if the profile has no value for it.
func (u *UserData) SetOnce(key string, value any) *UserData {
	return u.op(key, "$setOnce", u.clamp(value))
}

// Increment adds one to key.
func (u *UserData) Increment(key string) *UserData {
	return u.op(key, "$inc", 1)
}

// IncrementBy adds value to key.
func (u *UserData) IncrementBy(key string, value any) *UserData {
	return u.op(key, "$inc", value)
}

// Multiply multiplies key by value.
func (u *UserData) Multiply(key string, value any) *UserData {
	return u.op(key, "$mul", value)
}

// Max keeps the larger of key and value.
func (u *UserData) Max(key string, value any) *UserData {
	return u.op(key, "$max", value)
}

// Min keeps the smaller of key and value.
func (u *UserData) Min(key string, value any) *UserData {
	return u.op(key, "$min", value)
}

// Push appends value to the array at key.
func (u *UserData) Push(key string, value any) *UserData {
	return u.appendOp(key, "$push", value)
}

// PushUnique appends value to the array at key unless present.
func (u *UserData) PushUnique(key string, value any) *UserData {
	return u.appendOp(key, "$addToSet", value)
}

// Pull removes value from the array at key.
func (u *UserData) Pull(key string, value any) *UserData {
	return u.appendOp(key, "$pull", value)
}

// Save flushes queued events and sends the accumulated modifications.
// Properties rejected by behavior settings are dropped.
func (u *UserData) Save() {
	u.mu.Lock()
	custom := u.custom
	u.custom = make(map[string]any)
	u.mu.Unlock()

	i := u.inst
	if len(custom) == 0 || i.isClosed() || !i.consent.Has(model.FeatureUsers) {
		return
	}
	d := model.UserDetails{Custom: custom}
	i.limits.UserDetails(&d)
	i.behavior.FilterUserDetails(&d)
	if d.IsEmpty() {
		return
	}
	i.sendUserDetails(d)
}

// Pending returns a copy of the unsaved modifications.
func (u *UserData) Pending() map[string]any {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]any, len(u.custom))
	for k, v := range u.custom {
		out[k] = v
	}
	return out
}

func (u *UserData) clamp(value any) any {
	if s, ok := value.(string); ok {
		return u.inst.limits.Value(s)
	}
	return value
}

func (u *UserData) put(key string, value any) *UserData {
	key = u.inst.limits.Key(key)
	if key == "" {
		return u
	}
	u.mu.Lock()
	u.custom[key] = value
	u.mu.Unlock()
	return u
}

func (u *UserData) op(key, operator string, value any) *UserData {
	return u.put(key, map[string]any{operator: value})
}

func (u *UserData) appendOp(key, operator string, value any) *UserData {
	key = u.inst.limits.Key(key)
	if key == "" {
		return u
	}
	value = u.clamp(value)
	u.mu.Lock()
	defer u.mu.Unlock()
	if existing, ok := u.custom[key].(map[string]any); ok {
		if list, ok := existing[operator].([]any); ok {
			existing[operator] = append(list, value)
			return u
		}
	}
	u.custom[key] = map[string]any{operator: []any{value}}
	return u
}
