package content

import "errors"

// ErrNoContent means the response was well formed but carried nothing to display.
var ErrNoContent = errors.New("no content in response")
