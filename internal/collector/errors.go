package collector

import "errors"

// Sentinel errors.
var (
	ErrMissingAppKey    = errors.New("missing app_key")
	ErrMissingDeviceID  = errors.New("missing device_id")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)
