package delivery

import "errors"

// Sentinel errors for delivery operations.
var (
	ErrInFlight        = errors.New("delivery already in flight")
	ErrClosed          = errors.New("delivery loop closed")
	ErrInvalidEndpoint = errors.New("invalid collector endpoint")
	ErrInvalidResponse = errors.New("invalid collector response")
	ErrChecksum        = errors.New("checksum mismatch")
)
