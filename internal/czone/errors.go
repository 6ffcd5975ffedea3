package czone

import "errors"

// ErrInvalidPayload is returned when a payload is not structurally valid as a
// whole. Individual malformed entities never produce it; they are skipped.
var ErrInvalidPayload = errors.New("czone: invalid payload")
