package beacon

import "errors"

var (
	ErrInstanceExists = errors.New("instance already initialized")
	ErrInstanceClosed = errors.New("instance closed")
	ErrUnknownCommand = errors.New("unknown command")
)
