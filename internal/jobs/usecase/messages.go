package usecase

import (
	"context"

	"github.com/amankumarsingh77/backdrop/internal/compose"
	"github.com/amankumarsingh77/backdrop/internal/mux"
	"github.com/amankumarsingh77/backdrop/internal/pipeline"
	"github.com/pkg/errors"
)

var errOracleStart = errors.New("matting model unavailable")

// failureMessage is the short text stored on a failed job. Details stay in
// the logs: they can hold tool output and server paths.
func failureMessage(err error) string {
	var (
		invalid  *pipeline.InvalidSourceError
		empty    *pipeline.EmptyOutputError
		encoding *pipeline.EncodingFailedError
		shape    *compose.FrameShapeError
	)
	switch {
	case errors.As(err, &invalid):
		return invalid.Error()
	case errors.Is(err, errOracleStart):
		return errOracleStart.Error()
	case errors.Is(err, pipeline.ErrMatting):
		return "matting failed"
	case errors.Is(err, pipeline.ErrBackground):
		return "background image could not be read"
	case errors.As(err, &empty):
		return "no frames could be written"
	case errors.As(err, &encoding):
		return "encoding failed"
	case errors.As(err, &shape):
		return "frame shape mismatch"
	case errors.Is(err, mux.ErrNoCodecAvailable):
		return mux.ErrNoCodecAvailable.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "job cancelled"
	}
	return "internal error"
}
