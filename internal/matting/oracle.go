package matting

import (
	"context"
	"fmt"

	"github.com/amankumarsingh77/backdrop/internal/media"
)

// RecurrentState is the model memory threaded between batches of one job.
// The zero value (nil) is the initial state.
type RecurrentState []byte

// Result holds one alpha matte and one foreground estimate per input frame,
// in input order. Foregrounds are BGR in [0,1].
type Result struct {
	Alphas      []*media.Matte
	Foregrounds []*media.FloatImage
}

// Oracle runs the matting model. Batches of one job must be submitted in
// order, each with the state returned by the previous call.
type Oracle interface {
	ProcessBatch(ctx context.Context, frames []*media.Frame, state RecurrentState) (*Result, RecurrentState, error)
	Close() error
}

// Factory creates a fresh oracle for one job. Oracles are never shared
// between jobs.
type Factory func(ctx context.Context) (Oracle, error)

func (r *Result) validate(n int) error {
	if r == nil {
		return fmt.Errorf("oracle returned no result")
	}
	if len(r.Alphas) != n || len(r.Foregrounds) != n {
		return fmt.Errorf("oracle returned %d alphas and %d foregrounds for %d frames", len(r.Alphas), len(r.Foregrounds), n)
	}
	return nil
}

// Run calls o and checks the result has one entry per frame.
func Run(ctx context.Context, o Oracle, frames []*media.Frame, state RecurrentState) (*Result, RecurrentState, error) {
	res, next, err := o.ProcessBatch(ctx, frames, state)
	if err != nil {
		return nil, nil, err
	}
	if err := res.validate(len(frames)); err != nil {
		return nil, nil, err
	}
	return res, next, nil
}
