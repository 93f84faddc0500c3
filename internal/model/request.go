package model

import (
	"net/url"
	"sort"
)

// RequestKind names the primary payload of a Request.
type RequestKind string

const (
	KindEvents          RequestKind = "events"
	KindBeginSession    RequestKind = "begin_session"
	KindSessionDuration RequestKind = "session_duration"
	KindEndSession      RequestKind = "end_session"
	KindUserDetails     RequestKind = "user_details"
	KindConsent         RequestKind = "consent"
	KindCrash           RequestKind = "crash"
	KindChangeID        RequestKind = "change_id"
)

// Standard request parameters.
const (
	ParamAppKey          = "app_key"
	ParamDeviceID        = "device_id"
	ParamTimestamp       = "timestamp"
	ParamHour            = "hour"
	ParamDOW             = "dow"
	ParamSDKName         = "sdk_name"
	ParamSDKVersion      = "sdk_version"
	ParamEvents          = "events"
	ParamBeginSession    = "begin_session"
	ParamSessionDuration = "session_duration"
	ParamEndSession      = "end_session"
	ParamUserDetails     = "user_details"
	ParamConsent         = "consent"
	ParamCrash           = "crash"
	ParamRemaining       = "rr"
	ParamChecksum        = "checksum256"
	ParamOldDeviceID     = "old_device_id"
)

// Request is one self-contained unit of delivery. Params are never changed
// after enqueue except for the remaining-requests counter.
type Request struct {
	ID        string            `json:"id"` // ULID
	Kind      RequestKind       `json:"kind"`
	Params    map[string]string `json:"params"`
	CreatedAt int64             `json:"created_at"` // unix ms

	// Trigger marks a journey-trigger request whose confirmed delivery
	// starts a content fetch. Cleared after the first failed attempt.
	Trigger bool `json:"trigger,omitempty"`

	Attempts int   `json:"attempts,omitempty"`
	RetryAt  int64 `json:"retry_at,omitempty"` // unix ms, zero when not backing off
}

// DeviceID returns the device id the request was created under.
func (r *Request) DeviceID() string {
	return r.Params[ParamDeviceID]
}

// BackingOff reports whether the request must wait until after now (unix ms).
func (r *Request) BackingOff(now int64) bool {
	return r.RetryAt > 0 && now < r.RetryAt
}

// Values returns the params as url.Values.
func (r *Request) Values() url.Values {
	v := make(url.Values, len(r.Params))
	for k, p := range r.Params {
		v.Set(k, p)
	}
	return v
}

// ParamKeys returns the param names in sorted order.
func (r *Request) ParamKeys() []string {
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of r.
func (r Request) Clone() Request {
	out := r
	out.Params = make(map[string]string, len(r.Params))
	for k, v := range r.Params {
		out.Params[k] = v
	}
	return out
}
