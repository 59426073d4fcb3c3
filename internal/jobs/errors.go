package jobs

import "errors"

// ErrInvalidInput marks requests rejected before any work is scheduled.
var ErrInvalidInput = errors.New("invalid input")
