package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// EvenDimensionsFilter pads odd widths and heights by one pixel. 4:2:0
// chroma subsampling needs both to be even and libx264 refuses otherwise.
const EvenDimensionsFilter = "pad=ceil(iw/2)*2:ceil(ih/2)*2"

// FFmpeg decodes sources into raw BGR frames and encodes frames into the
// working artifact with a single video codec chosen at startup.
type FFmpeg struct {
	Bin    string
	Codec  string
	Prober *Prober
}

func NewFFmpeg(bin, codec string, prober *Prober) *FFmpeg {
	return &FFmpeg{Bin: bin, Codec: codec, Prober: prober}
}

type ffmpegSource struct {
	info   SourceInfo
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *StderrTail
	cancel context.CancelFunc
	buf    int
	done   bool
}

// OpenSource probes path and starts a decoder emitting bgr24 frames.
func (m *FFmpeg) OpenSource(ctx context.Context, path string) (Source, error) {
	info, err := m.Prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	if info.Width <= 0 || info.Height <= 0 {
		return &ffmpegSource{info: info, done: true}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, m.Bin,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo", "-pix_fmt", "bgr24",
		"-",
	)
	stderr := NewStderrTail(DefaultStderrTail)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create decoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}
	return &ffmpegSource{
		info:   info,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		cancel: cancel,
		buf:    info.Width * info.Height * Channels,
	}, nil
}

func (s *ffmpegSource) Info() SourceInfo { return s.info }

func (s *ffmpegSource) ReadFrame() (*Frame, error) {
	if s.done {
		return nil, io.EOF
	}
	f := NewFrame(s.info.Width, s.info.Height)
	if _, err := io.ReadFull(s.stdout, f.Pix); err != nil {
		s.done = true
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return f, nil
}

func (s *ffmpegSource) Close() error {
	if s.cmd == nil {
		return nil
	}
	s.cancel()
	_ = s.stdout.Close()
	_ = s.cmd.Wait()
	return nil
}

type ffmpegSink struct {
	path   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *StderrTail
	closed bool
}

// CreateSink starts an encoder reading bgr24 frames on stdin and writing a
// silent video to path.
func (m *FFmpeg) CreateSink(ctx context.Context, path string, info SourceInfo) (Sink, error) {
	cmd := exec.CommandContext(ctx, m.Bin, encoderArgs(m.Codec, path, info)...)
	stderr := NewStderrTail(DefaultStderrTail)
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}
	return &ffmpegSink{path: path, cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

func encoderArgs(codec, path string, info SourceInfo) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-f", "rawvideo", "-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-r", strconv.FormatFloat(info.FPS, 'f', -1, 64),
		"-i", "-",
		"-an",
		"-vf", EvenDimensionsFilter,
		"-c:v", codec,
		"-pix_fmt", PixelFormat(codec),
		path,
	}
}

// PixelFormat is the 4:2:0 output format for codec.
func PixelFormat(codec string) string {
	if codec == "mjpeg" {
		return "yuvj420p"
	}
	return "yuv420p"
}

func (s *ffmpegSink) WriteFrame(f *Frame) error {
	if _, err := s.stdin.Write(f.Pix); err != nil {
		return fmt.Errorf("encoder write: %w, stderr: %s", err, s.stderr.String())
	}
	return nil
}

func (s *ffmpegSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder process failed: %v, stderr: %s", err, s.stderr.String())
	}
	return nil
}

func (s *ffmpegSink) Path() string { return s.path }
