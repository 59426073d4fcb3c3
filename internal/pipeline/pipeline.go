package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/amankumarsingh77/backdrop/internal/compose"
	"github.com/amankumarsingh77/backdrop/internal/config"
	"github.com/amankumarsingh77/backdrop/internal/matting"
	"github.com/amankumarsingh77/backdrop/internal/media"
	"github.com/amankumarsingh77/backdrop/internal/models"
	"github.com/amankumarsingh77/backdrop/pkg/logger"
	"github.com/amankumarsingh77/backdrop/pkg/utils"
)

// ProgressFunc receives the number of frames handled so far and the total.
type ProgressFunc func(processed, total int)

// SinkFactory creates the working output once the source has been
// validated. info carries the effective frame rate.
type SinkFactory func(info media.SourceInfo) (media.Sink, error)

type Result struct {
	Info          media.SourceInfo
	FramesTotal   int
	FramesWritten int
	Diagnostics   []models.FrameDiagnostic
	WorkingPath   string
}

// frameResult is the outcome of one frame: either a composited frame or the
// reason it was skipped.
type frameResult struct {
	index int
	frame *media.Frame
	err   error
}

type Pipeline struct {
	cfg    config.PipelineConfig
	logger logger.Logger
}

func NewPipeline(cfg config.PipelineConfig, logger logger.Logger) *Pipeline {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.DefaultFPS <= 0 {
		cfg.DefaultFPS = 30
	}
	return &Pipeline{cfg: cfg, logger: logger}
}

// Validate checks the source metadata and substitutes the default frame
// rate when the source reports none.
func (p *Pipeline) Validate(info media.SourceInfo) (media.SourceInfo, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return info, &InvalidSourceError{Reason: fmt.Sprintf("dimensions %dx%d", info.Width, info.Height)}
	}
	if info.FrameCount <= 0 {
		return info, &InvalidSourceError{Reason: fmt.Sprintf("frame count %d", info.FrameCount)}
	}
	if info.FPS <= 0 {
		info.FPS = p.cfg.DefaultFPS
	}
	return info, nil
}

// Process streams src through the oracle and compositor into a sink. The
// oracle starts from its initial state and receives batches strictly in
// order. Frames that fail to composite or write are skipped and recorded in
// the result diagnostics.
func (p *Pipeline) Process(ctx context.Context, src media.Source, newSink SinkFactory, oracle matting.Oracle, opts models.RenderOptions, progress ProgressFunc) (*Result, error) {
	info, err := p.Validate(src.Info())
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(int, int) {}
	}

	bg, err := compose.Resolve(opts.Background, info.Width, info.Height, opts.BlurRadius, opts.LightingStrength)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackground, err)
	}

	sink, err := newSink(info)
	if err != nil {
		return nil, fmt.Errorf("create working output: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = sink.Close()
		}
	}()

	total := info.FrameCount
	res := &Result{Info: info, FramesTotal: total, WorkingPath: sink.Path()}
	var state matting.RecurrentState
	processed := 0
	batch := make([]*media.Frame, 0, p.cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		out, next, err := matting.Run(ctx, oracle, batch, state)
		if err != nil {
			return fmt.Errorf("%w: batch at frame %d: %w", ErrMatting, processed, err)
		}
		state = next
		for i, f := range batch {
			r := p.render(processed, f, out.Alphas[i], out.Foregrounds[i], bg, opts.LightingStrength)
			if r.err == nil {
				r.err = sink.WriteFrame(r.frame)
			}
			if r.err != nil {
				p.logger.Warnf("Pipeline - frame %d skipped: %v", r.index, r.err)
				res.Diagnostics = append(res.Diagnostics, models.FrameDiagnostic{Frame: r.index, Reason: r.err.Error()})
			} else {
				res.FramesWritten++
			}
			processed++
			progress(processed, total)
		}
		batch = batch[:0]
		return nil
	}

	for processed+len(batch) < total {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", processed+len(batch), err)
		}
		batch = append(batch, f)
		if len(batch) == p.cfg.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if processed < total {
		p.logger.Warnf("Pipeline - source ended after %d of %d frames", processed, total)
		progress(total, total)
	}

	closed = true
	closeErr := sink.Close()
	if res.FramesWritten == 0 {
		return res, &EmptyOutputError{Skipped: len(res.Diagnostics)}
	}
	if closeErr != nil {
		return res, &EncodingFailedError{Path: sink.Path(), Err: closeErr}
	}
	if size := utils.FileSize(sink.Path()); size < p.cfg.MinOutputBytes {
		return res, &EncodingFailedError{Path: sink.Path(), Size: size}
	}
	return res, nil
}

func (p *Pipeline) render(index int, src *media.Frame, alpha *media.Matte, fg *media.FloatImage, bg *compose.Background, strength float64) frameResult {
	if err := src.Validate(); err != nil {
		return frameResult{index: index, err: err}
	}
	out, err := compose.Composite(fg, alpha, bg, strength, p.cfg.StrictShape)
	if err != nil {
		return frameResult{index: index, err: err}
	}
	return frameResult{index: index, frame: out}
}
