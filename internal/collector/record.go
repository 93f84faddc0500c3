// Package collector stores the requests an SDK delivers to the development
// collector and serves the settings and content blocks SDKs fetch back.
package collector

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/penshort/beacon/internal/delivery"
	"github.com/penshort/beacon/internal/model"
)

// Record is one ingested request.
type Record struct {
	ID         string            `json:"id"`
	AppKey     string            `json:"app_key"`
	DeviceID   string            `json:"device_id"`
	Kind       model.RequestKind `json:"kind"`
	Params     map[string]string `json:"params"`
	ReceivedAt time.Time         `json:"received_at"`
}

// kindParams lists payload params in the order they decide a record's kind.
var kindParams = []struct {
	param string
	kind  model.RequestKind
}{
	{model.ParamEvents, model.KindEvents},
	{model.ParamEndSession, model.KindEndSession},
	{model.ParamBeginSession, model.KindBeginSession},
	{model.ParamSessionDuration, model.KindSessionDuration},
	{model.ParamUserDetails, model.KindUserDetails},
	{model.ParamConsent, model.KindConsent},
	{model.ParamCrash, model.KindCrash},
	{model.ParamOldDeviceID, model.KindChangeID},
}

// KindOf infers the primary payload of params. Requests without a known
// payload are reported as "unknown".
func KindOf(params url.Values) model.RequestKind {
	for _, kp := range kindParams {
		if params.Has(kp.param) {
			return kp.kind
		}
	}
	return "unknown"
}

// Verify checks params carry an app key and a device id and, when salt is
// set, a matching checksum256.
func Verify(params url.Values, salt string) error {
	if params.Get(model.ParamAppKey) == "" {
		return ErrMissingAppKey
	}
	if params.Get(model.ParamDeviceID) == "" {
		return ErrMissingDeviceID
	}
	if salt == "" {
		return nil
	}
	if err := delivery.VerifyChecksum(params, salt); err != nil {
		if errors.Is(err, delivery.ErrChecksum) {
			return ErrChecksumMismatch
		}
		return fmt.Errorf("verify checksum: %w", err)
	}
	return nil
}

// NewRecord verifies params and builds the Record stored for them.
// Multi-valued params keep their first value.
func NewRecord(params url.Values, salt string, now time.Time) (Record, error) {
	if err := Verify(params, salt); err != nil {
		return Record{}, err
	}
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	return Record{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		AppKey:     flat[model.ParamAppKey],
		DeviceID:   flat[model.ParamDeviceID],
		Kind:       KindOf(params),
		Params:     flat,
		ReceivedAt: now.UTC(),
	}, nil
}
