package mux

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amankumarsingh77/backdrop/internal/config"
	"github.com/amankumarsingh77/backdrop/internal/media"
	"github.com/amankumarsingh77/backdrop/pkg/logger"
	"github.com/amankumarsingh77/backdrop/pkg/utils"
)

// Outcome describes what Finalize produced.
type Outcome struct {
	HasAudio bool
}

// Finalizer turns a silent working video into the deliverable, carrying
// over the source audio when possible. Audio problems never fail a job.
type Finalizer struct {
	caps       *Capabilities
	cfg        config.MediaConfig
	scratchDir string
	logger     logger.Logger
}

func NewFinalizer(caps *Capabilities, cfg config.MediaConfig, scratchDir string, logger logger.Logger) *Finalizer {
	return &Finalizer{caps: caps, cfg: cfg, scratchDir: scratchDir, logger: logger}
}

// Finalize writes finalPath from workingPath and the audio of sourcePath.
// Only a failure to place the silent working video at finalPath is an
// error. The working file and any extracted audio are removed.
func (f *Finalizer) Finalize(ctx context.Context, workingPath, sourcePath, finalPath string) (*Outcome, error) {
	var audioPath string
	defer func() {
		utils.RemoveQuietly(workingPath, audioPath)
	}()

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	if f.caps == nil || !f.caps.AudioSupported() {
		return &Outcome{}, f.keepSilent(workingPath, finalPath)
	}

	audioPath = f.extractAudio(ctx, sourcePath)
	if audioPath == "" {
		return &Outcome{}, f.keepSilent(workingPath, finalPath)
	}

	stderr, err := runTool(ctx, f.cfg.MuxTimeout, f.caps.RemuxPath,
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", workingPath,
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-vf", media.EvenDimensionsFilter,
		"-c:v", f.muxVideoCodec(),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		finalPath,
	)
	if err != nil || utils.FileSize(finalPath) <= 0 {
		f.logger.Warnf("Mux - remux failed, keeping silent video: %v %s", err, stderr)
		utils.RemoveQuietly(finalPath)
		return &Outcome{}, f.keepSilent(workingPath, finalPath)
	}
	return &Outcome{HasAudio: true}, nil
}

func (f *Finalizer) muxVideoCodec() string {
	for _, c := range f.caps.Codecs {
		if c == "libx264" || c == "libopenh264" {
			return c
		}
	}
	if c := f.caps.Codec(); c != "" && c != "mjpeg" {
		return c
	}
	return "mpeg4"
}

// extractAudio returns the path of the extracted AAC track, or "" when the
// source has no audio or extraction failed.
func (f *Finalizer) extractAudio(ctx context.Context, sourcePath string) string {
	tmp, err := os.CreateTemp(f.scratchDir, "audio-*.m4a")
	if err != nil {
		f.logger.Warnf("Mux - audio temp file: %v", err)
		return ""
	}
	path := tmp.Name()
	tmp.Close()

	stderr, err := runTool(ctx, f.cfg.ExtractTimeout, f.caps.RemuxPath,
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", sourcePath,
		"-vn",
		"-c:a", "aac",
		path,
	)
	if err != nil || utils.FileSize(path) <= 0 {
		if err != nil {
			f.logger.Debugf("Mux - no audio extracted from %s: %v %s", sourcePath, err, stderr)
		}
		utils.RemoveQuietly(path)
		return ""
	}
	return path
}

func (f *Finalizer) keepSilent(workingPath, finalPath string) error {
	if err := utils.MoveFile(workingPath, finalPath); err != nil {
		return fmt.Errorf("move working video: %w", err)
	}
	return nil
}
