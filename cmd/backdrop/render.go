package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/amankumarsingh77/backdrop/internal/matting"
	"github.com/amankumarsingh77/backdrop/internal/media"
	"github.com/amankumarsingh77/backdrop/internal/models"
	"github.com/amankumarsingh77/backdrop/internal/mux"
	"github.com/amankumarsingh77/backdrop/internal/pipeline"
	"github.com/amankumarsingh77/backdrop/pkg/utils"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type renderOptions struct {
	input       string
	output      string
	background  string
	color       []int
	blur        int
	lighting    float64
	batch       int
	passthrough bool
}

var renderOpts renderOptions

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Replace the background of a video on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRender(cmd.Context(), cmd.OutOrStdout(), renderOpts)
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOpts.input, "input", "i", "", "Path to input video")
	renderCmd.Flags().StringVarP(&renderOpts.output, "output", "o", "", "Path to output video (default: out_<input name> next to the input)")
	renderCmd.Flags().StringVarP(&renderOpts.background, "background", "b", "", "Background image; the color is used when empty or missing")
	renderCmd.Flags().IntSliceVar(&renderOpts.color, "color", append([]int(nil), models.DefaultColor[:]...), "Background color as r,g,b")
	renderCmd.Flags().IntVar(&renderOpts.blur, "blur", 0, "Background blur radius in pixels")
	renderCmd.Flags().Float64Var(&renderOpts.lighting, "lighting", 0, "Lighting match strength in [0,1]")
	renderCmd.Flags().IntVar(&renderOpts.batch, "batch", 0, "Frames per matting batch (default: from config)")
	renderCmd.Flags().BoolVar(&renderOpts.passthrough, "passthrough", false, "Skip the matting worker and keep every pixel as foreground")

	renderCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(renderCmd)
}

func (o renderOptions) renderOptions() (models.RenderOptions, error) {
	if len(o.color) != 3 {
		return models.RenderOptions{}, fmt.Errorf("--color needs three values, got %d", len(o.color))
	}
	for _, c := range o.color {
		if c < 0 || c > 255 {
			return models.RenderOptions{}, fmt.Errorf("--color values must be in [0,255]")
		}
	}
	if o.blur < 0 {
		return models.RenderOptions{}, fmt.Errorf("--blur must not be negative")
	}
	if o.lighting < 0 || o.lighting > 1 {
		return models.RenderOptions{}, fmt.Errorf("--lighting must be in [0,1]")
	}
	return models.RenderOptions{
		Background: models.BackgroundSpec{
			Color:     [3]int{o.color[0], o.color[1], o.color[2]},
			ImagePath: o.background,
		},
		BlurRadius:       o.blur,
		LightingStrength: o.lighting,
	}, nil
}

func runRender(ctx context.Context, out io.Writer, o renderOptions) error {
	opts, err := o.renderOptions()
	if err != nil {
		return err
	}
	if o.output == "" {
		o.output = filepath.Join(filepath.Dir(o.input), "out_"+utils.SanitizeFileName(filepath.Base(o.input), "video.mp4"))
	}
	if o.batch > 0 {
		cfg.Pipeline.BatchSize = o.batch
	}

	caps, err := mux.Discover(ctx, cfg.Media, appLog)
	if err != nil {
		return err
	}
	prober := &media.Prober{Path: cfg.Media.FFprobePath, Timeout: cfg.Media.ProbeTimeout}
	backend := media.NewFFmpeg(cfg.Media.FFmpegPath, caps.Codec(), prober)

	factory := matting.ProcessFactory(cfg.Oracle)
	if o.passthrough {
		factory = matting.ConstantFactory(1, nil)
	}
	oracle, err := factory(ctx)
	if err != nil {
		return err
	}
	defer oracle.Close()

	src, err := backend.OpenSource(ctx, o.input)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(cfg.Storage.ScratchDir, 0o755); err != nil {
		return err
	}
	working := filepath.Join(cfg.Storage.ScratchDir, fmt.Sprintf("work_%s.mp4", uuid.New().String()))
	newSink := func(info media.SourceInfo) (media.Sink, error) {
		return backend.CreateSink(ctx, working, info)
	}

	var bar *progressbar.ProgressBar
	progress := func(processed, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Rendering"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}
		_ = bar.Set(processed)
	}

	res, err := pipeline.NewPipeline(cfg.Pipeline, appLog).Process(ctx, src, newSink, oracle, opts, progress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		utils.RemoveQuietly(working)
		return err
	}

	outcome, err := mux.NewFinalizer(caps, cfg.Media, cfg.Storage.ScratchDir, appLog).Finalize(ctx, res.WorkingPath, o.input, o.output)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d/%d frames, audio=%t\n", o.output, res.FramesWritten, res.FramesTotal, outcome.HasAudio)
	for _, d := range res.Diagnostics {
		fmt.Fprintf(out, "  frame %d skipped: %s\n", d.Frame, d.Reason)
	}
	return nil
}
