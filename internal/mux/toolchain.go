package mux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/amankumarsingh77/backdrop/internal/config"
	"github.com/amankumarsingh77/backdrop/internal/media"
	"github.com/amankumarsingh77/backdrop/pkg/logger"
)

var ErrNoCodecAvailable = errors.New("no video codec available")

// NoCodecAvailableError lists the codecs that failed to open.
type NoCodecAvailableError struct {
	Tried []string
}

func (e *NoCodecAvailableError) Error() string {
	return fmt.Sprintf("%v (tried %s)", ErrNoCodecAvailable, strings.Join(e.Tried, ", "))
}

func (e *NoCodecAvailableError) Is(target error) bool { return target == ErrNoCodecAvailable }

// Capabilities is the toolchain resolved once at startup.
type Capabilities struct {
	FFmpegPath string `json:"ffmpeg_path"`
	// RemuxPath is empty when no remuxing tool was found; outputs are then
	// silent.
	RemuxPath string   `json:"remux_path,omitempty"`
	Codecs    []string `json:"codecs"`
}

func (c *Capabilities) AudioSupported() bool { return c.RemuxPath != "" }

// Codec is the preferred working codec.
func (c *Capabilities) Codec() string {
	if len(c.Codecs) == 0 {
		return ""
	}
	return c.Codecs[0]
}

func runTool(ctx context.Context, timeout time.Duration, bin string, args ...string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	stderr := media.NewStderrTail(media.DefaultStderrTail)
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return stderr.String(), err
	}
	return stderr.String(), nil
}

// FindRemuxTool returns the configured remux tool if it runs, otherwise the
// first candidate that can be found and answers -version. It returns an
// empty string when nothing usable exists.
func FindRemuxTool(ctx context.Context, cfg config.MediaConfig) string {
	candidates := cfg.RemuxCandidates
	if cfg.RemuxToolPath != "" {
		candidates = []string{cfg.RemuxToolPath}
	}
	for _, c := range candidates {
		path, err := exec.LookPath(c)
		if err != nil {
			continue
		}
		if _, err := runTool(ctx, cfg.ProbeTimeout, path, "-version"); err == nil {
			return path
		}
	}
	return ""
}

// ProbeCodec checks that ffmpeg can open codec for writing by encoding a
// single synthetic frame.
func ProbeCodec(ctx context.Context, ffmpeg string, timeout time.Duration, codec string) error {
	stderr, err := runTool(ctx, timeout, ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=black:s=64x64:d=0.1",
		"-frames:v", "1",
		"-c:v", codec, "-pix_fmt", media.PixelFormat(codec),
		"-f", "null", "-",
	)
	if err != nil {
		return fmt.Errorf("%s: %v %s", codec, err, stderr)
	}
	return nil
}

// Discover resolves the toolchain. It fails with ErrNoCodecAvailable when
// none of the configured codecs can be opened.
func Discover(ctx context.Context, cfg config.MediaConfig, log logger.Logger) (*Capabilities, error) {
	caps := &Capabilities{FFmpegPath: cfg.FFmpegPath}
	if caps.FFmpegPath == "" {
		caps.FFmpegPath = "ffmpeg"
	}
	if p, err := exec.LookPath(caps.FFmpegPath); err == nil {
		caps.FFmpegPath = p
	}

	for _, codec := range cfg.Codecs {
		if err := ProbeCodec(ctx, caps.FFmpegPath, cfg.ProbeTimeout, codec); err != nil {
			log.Debugf("Toolchain - codec unavailable: %v", err)
			continue
		}
		caps.Codecs = append(caps.Codecs, codec)
	}
	if len(caps.Codecs) == 0 {
		return nil, &NoCodecAvailableError{Tried: cfg.Codecs}
	}

	caps.RemuxPath = FindRemuxTool(ctx, cfg)
	if caps.RemuxPath == "" {
		log.Warn("Toolchain - no remux tool found, outputs will have no audio")
	}
	log.Infof("Toolchain - ffmpeg=%s codecs=%v remux=%q", caps.FFmpegPath, caps.Codecs, caps.RemuxPath)
	return caps, nil
}
