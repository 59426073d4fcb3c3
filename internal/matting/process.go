package matting

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/amankumarsingh77/backdrop/internal/config"
	"github.com/amankumarsingh77/backdrop/internal/media"
)

const (
	statusOK    = 0
	statusError = 1

	// maxResponseBytes bounds a single response allocation.
	maxResponseBytes = 1 << 31
)

var ErrWorkerTimeout = errors.New("matting worker timed out")

// ProcessOracle talks to an inference worker process. Requests go to the
// worker's stdin and responses come back on a dedicated pipe that the
// worker sees as file descriptor 3, so worker logging on stdout/stderr never
// corrupts the stream. Every message is a big-endian uint32 length followed
// by the payload.
//
// Request:  count, width, height, stateLen (uint32 each), state, RGB frames.
// Response: status byte; on success count, width, height, stateLen, state,
// count*width*height float32 alphas, then count*width*height*3 float32 RGB
// foregrounds. On error a uint32 length and a message.
type ProcessOracle struct {
	Cmd         *exec.Cmd
	Stderr      *media.StderrTail
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

// NewProcessOracle starts the configured worker command.
func NewProcessOracle(ctx context.Context, cfg config.OracleConfig) (*ProcessOracle, error) {
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	stderr := media.NewStderrTail(media.DefaultStderrTail)
	cmd.Stderr = stderr

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{w}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("matting worker failed to start: %w", err)
	}
	// only the child keeps the write end
	w.Close()

	return &ProcessOracle{
		Cmd:         cmd,
		Stderr:      stderr,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// ProcessFactory starts one worker process per job.
func ProcessFactory(cfg config.OracleConfig) Factory {
	return func(ctx context.Context) (Oracle, error) {
		return NewProcessOracle(ctx, cfg)
	}
}

func (p *ProcessOracle) ProcessBatch(ctx context.Context, frames []*media.Frame, state RecurrentState) (*Result, RecurrentState, error) {
	if len(frames) == 0 {
		return &Result{}, state, nil
	}
	req, err := encodeRequest(frames, state)
	if err != nil {
		return nil, nil, err
	}
	if err := binary.Write(p.Stdin, binary.BigEndian, uint32(len(req))); err != nil {
		return nil, nil, p.wrap(err)
	}
	if _, err := p.Stdin.Write(req); err != nil {
		return nil, nil, p.wrap(err)
	}

	body, err := p.readResponse(ctx)
	if err != nil {
		return nil, nil, p.wrap(err)
	}
	return decodeResponse(body, len(frames))
}

func (p *ProcessOracle) readResponse(ctx context.Context) ([]byte, error) {
	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		header := make([]byte, 4)
		if _, err := io.ReadFull(p.DataPipe, header); err != nil {
			done <- result{err: err}
			return
		}
		n := binary.BigEndian.Uint32(header)
		if uint64(n) > maxResponseBytes {
			done <- result{err: fmt.Errorf("response of %d bytes exceeds limit", n)}
			return
		}
		body := make([]byte, n)
		_, err := io.ReadFull(p.DataPipe, body)
		done <- result{body: body, err: err}
	}()

	var timeout <-chan time.Time
	if p.ReadTimeout > 0 {
		timer := time.NewTimer(p.ReadTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case r := <-done:
		return r.body, r.err
	case <-timeout:
		p.kill()
		return nil, ErrWorkerTimeout
	case <-ctx.Done():
		p.kill()
		return nil, ctx.Err()
	}
}

func (p *ProcessOracle) kill() {
	if p.Cmd != nil && p.Cmd.Process != nil {
		_ = p.Cmd.Process.Kill()
	}
}

func (p *ProcessOracle) wrap(err error) error {
	if p.Stderr != nil && p.Stderr.Len() > 0 {
		return fmt.Errorf("matting worker: %w, stderr: %s", err, p.Stderr.String())
	}
	return fmt.Errorf("matting worker: %w", err)
}

func (p *ProcessOracle) Close() error {
	if p.Stdin != nil {
		p.Stdin.Close()
	}
	if p.DataPipe != nil {
		p.DataPipe.Close()
	}
	if p.Cmd != nil {
		return p.Cmd.Wait()
	}
	return nil
}

func encodeRequest(frames []*media.Frame, state RecurrentState) ([]byte, error) {
	w, h := frames[0].Width, frames[0].Height
	buf := new(bytes.Buffer)
	buf.Grow(16 + len(state) + len(frames)*w*h*media.Channels)
	for _, v := range []uint32{uint32(len(frames)), uint32(w), uint32(h), uint32(len(state))} {
		binary.Write(buf, binary.BigEndian, v)
	}
	buf.Write(state)
	rgb := make([]byte, w*h*media.Channels)
	for i, f := range frames {
		if f.Width != w || f.Height != h {
			return nil, fmt.Errorf("frame %d is %dx%d, batch is %dx%d", i, f.Width, f.Height, w, h)
		}
		for p := 0; p < len(f.Pix); p += media.Channels {
			rgb[p] = f.Pix[p+2]
			rgb[p+1] = f.Pix[p+1]
			rgb[p+2] = f.Pix[p]
		}
		buf.Write(rgb)
	}
	return buf.Bytes(), nil
}

func decodeResponse(body []byte, want int) (*Result, RecurrentState, error) {
	if len(body) == 0 {
		return nil, nil, fmt.Errorf("empty response from matting worker")
	}
	r := bytes.NewReader(body[1:])
	if body[0] == statusError {
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, nil, fmt.Errorf("matting worker error: malformed message")
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, nil, fmt.Errorf("matting worker error: malformed message")
		}
		return nil, nil, fmt.Errorf("matting worker error: %s", msg)
	}
	if body[0] != statusOK {
		return nil, nil, fmt.Errorf("matting worker returned status %d", body[0])
	}

	var hdr [4]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, nil, fmt.Errorf("read response header: %w", err)
	}
	count, w, h, stateLen := int(hdr[0]), int(hdr[1]), int(hdr[2]), int(hdr[3])
	if count != want {
		return nil, nil, fmt.Errorf("matting worker returned %d results for %d frames", count, want)
	}
	if stateLen > r.Len() {
		return nil, nil, fmt.Errorf("state length %d exceeds response", stateLen)
	}
	next := make(RecurrentState, stateLen)
	if _, err := io.ReadFull(r, next); err != nil {
		return nil, nil, err
	}
	if need := count * w * h * 4 * (1 + media.Channels); r.Len() < need {
		return nil, nil, fmt.Errorf("response truncated: have %d bytes, need %d", r.Len(), need)
	}

	res := &Result{}
	for i := 0; i < count; i++ {
		m := media.NewMatte(w, h)
		if err := binary.Read(r, binary.BigEndian, m.Pix); err != nil {
			return nil, nil, err
		}
		res.Alphas = append(res.Alphas, m)
	}
	rgb := make([]float32, w*h*media.Channels)
	for i := 0; i < count; i++ {
		if err := binary.Read(r, binary.BigEndian, rgb); err != nil {
			return nil, nil, err
		}
		fg := media.NewFloatImage(w, h)
		for p := 0; p < len(rgb); p += media.Channels {
			fg.Pix[p] = rgb[p+2]
			fg.Pix[p+1] = rgb[p+1]
			fg.Pix[p+2] = rgb[p]
		}
		res.Foregrounds = append(res.Foregrounds, fg)
	}
	return res, next, nil
}
