package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrMatting wraps failures of the matting oracle during a run.
	ErrMatting = errors.New("matting failed")
	// ErrBackground wraps a background image that exists but cannot be used.
	ErrBackground = errors.New("background image unusable")
)

// InvalidSourceError reports an input that cannot be processed at all.
type InvalidSourceError struct {
	Reason string
}

func (e *InvalidSourceError) Error() string {
	return "invalid source: " + e.Reason
}

// EmptyOutputError is returned when every frame was skipped.
type EmptyOutputError struct {
	Skipped int
}

func (e *EmptyOutputError) Error() string {
	return fmt.Sprintf("no frames written (%d skipped)", e.Skipped)
}

// EncodingFailedError reports a working artifact that is missing or too
// small to be a real video.
type EncodingFailedError struct {
	Path string
	Size int64
	Err  error
}

func (e *EncodingFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encoding failed for %s: %v", e.Path, e.Err)
	}
	if e.Size < 0 {
		return fmt.Sprintf("encoding failed: %s was not created", e.Path)
	}
	return fmt.Sprintf("encoding failed: %s is only %d bytes", e.Path, e.Size)
}

func (e *EncodingFailedError) Unwrap() error { return e.Err }
