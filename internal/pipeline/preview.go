package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/amankumarsingh77/backdrop/internal/compose"
	"github.com/amankumarsingh77/backdrop/internal/matting"
	"github.com/amankumarsingh77/backdrop/internal/media"
	"github.com/amankumarsingh77/backdrop/internal/models"
)

// Preview composites only the first frame of src.
func (p *Pipeline) Preview(ctx context.Context, src media.Source, oracle matting.Oracle, opts models.RenderOptions) (*media.Frame, error) {
	info := src.Info()
	if info.Width <= 0 || info.Height <= 0 {
		return nil, &InvalidSourceError{Reason: fmt.Sprintf("dimensions %dx%d", info.Width, info.Height)}
	}
	f, err := src.ReadFrame()
	if errors.Is(err, io.EOF) {
		return nil, &InvalidSourceError{Reason: "no frames"}
	}
	if err != nil {
		return nil, fmt.Errorf("decode first frame: %w", err)
	}

	bg, err := compose.Resolve(opts.Background, info.Width, info.Height, opts.BlurRadius, opts.LightingStrength)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackground, err)
	}
	out, _, err := matting.Run(ctx, oracle, []*media.Frame{f}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMatting, err)
	}
	return compose.Composite(out.Foregrounds[0], out.Alphas[0], bg, opts.LightingStrength, p.cfg.StrictShape)
}
