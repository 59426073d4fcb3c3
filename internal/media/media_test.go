package media

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	assert.InDelta(t, 29.97, ParseRate("30000/1001"), 0.001)
	assert.Equal(t, 25.0, ParseRate("25"))
	assert.Equal(t, 0.0, ParseRate("0/0"))
	assert.Equal(t, 0.0, ParseRate(""))
	assert.Equal(t, 0.0, ParseRate("abc"))
}

func TestSolidFrameIsBGR(t *testing.T) {
	f := SolidFrame(2, 1, 10, 20, 30)
	assert.Equal(t, []byte{30, 20, 10, 30, 20, 10}, f.Pix)
	require.NoError(t, f.Validate())

	img := f.ToNRGBA()
	assert.Equal(t, []byte{10, 20, 30, 255}, img.Pix[:4])
	assert.Equal(t, f.Pix, FrameFromNRGBA(img).Pix)
}

func TestQuantizeRoundsAndClamps(t *testing.T) {
	assert.Equal(t, uint8(0), QuantizeChannel(-0.5))
	assert.Equal(t, uint8(255), QuantizeChannel(1.5))
	assert.Equal(t, uint8(128), QuantizeChannel(0.5))

	f := SolidFrame(3, 2, 7, 128, 254)
	assert.Equal(t, f.Pix, f.ToFloat().Quantize().Pix)
}

func TestValidateRejectsShortBuffer(t *testing.T) {
	f := &Frame{Width: 2, Height: 2, Pix: make([]byte, 5)}
	assert.Error(t, f.Validate())
}

func TestSliceSourceEOF(t *testing.T) {
	src := NewSliceSource(SourceInfo{Width: 1, Height: 1, FrameCount: 1}, []*Frame{NewFrame(1, 1)})
	_, err := src.ReadFrame()
	require.NoError(t, err)
	_, err = src.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

func TestFrameCountFallsBackToPacketCount(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()
	script := writeScript(t, dir, "ffprobe", `
for a in "$@"; do
  if [ "$a" = "-count_packets" ]; then
    echo '{"streams":[{"nb_read_packets":"42"}]}'
    exit 0
  fi
done
echo '{"streams":[{"width":64,"height":48,"avg_frame_rate":"0/0","r_frame_rate":"25/1","nb_frames":"N/A"}]}'
`)
	p := &Prober{Path: script, Timeout: 5 * time.Second}
	info, err := p.Probe(context.Background(), "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, SourceInfo{Width: 64, Height: 48, FPS: 25, FrameCount: 42}, info)
}

func TestStreamInfoFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()
	script := writeScript(t, dir, "ffprobe", "echo broken >&2\nexit 1\n")
	p := &Prober{Path: script, Timeout: 5 * time.Second}
	_, err := p.Probe(context.Background(), "clip.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestStderrTailKeepsLastBytes(t *testing.T) {
	tail := NewStderrTail(8)
	n, err := tail.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "23456789", tail.String())

	tail.Write([]byte("ab"))
	assert.Equal(t, "456789ab", tail.String())
	assert.Equal(t, 8, tail.Len())
}

func TestStderrTailConcurrentUse(t *testing.T) {
	tail := NewStderrTail(64)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tail.Write([]byte("line\n"))
				_ = tail.String()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 64, tail.Len())
}

func fakeFFmpeg(t *testing.T, ffmpegBody, ffprobeBody string) *FFmpeg {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()
	return NewFFmpeg(
		writeScript(t, dir, "ffmpeg", ffmpegBody),
		"libx264",
		&Prober{Path: writeScript(t, dir, "ffprobe", ffprobeBody), Timeout: 5 * time.Second},
	)
}

const twoByOneStreams = `echo '{"streams":[{"width":2,"height":1,"avg_frame_rate":"25/1","nb_frames":"3"}]}'
`

func TestFFmpegSourceTreatsShortReadAsEOF(t *testing.T) {
	// two whole 2x1 frames and a partial third
	m := fakeFFmpeg(t, "printf 'abcdefghijklmno'\n", twoByOneStreams)

	src, err := m.OpenSource(context.Background(), "clip.mp4")
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, SourceInfo{Width: 2, Height: 1, FPS: 25, FrameCount: 3}, src.Info())

	f, err := src.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), f.Pix)
	f, err = src.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("ghijkl"), f.Pix)

	_, err = src.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
	_, err = src.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFFmpegSourceZeroDimensions(t *testing.T) {
	m := fakeFFmpeg(t, "exit 1\n", `echo '{"streams":[{"width":0,"height":0,"nb_frames":"5"}]}'
`)
	src, err := m.OpenSource(context.Background(), "clip.mp4")
	require.NoError(t, err)
	_, err = src.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
}

func TestFFmpegSinkPadsToEvenDimensions(t *testing.T) {
	dir := t.TempDir()
	argsPath := filepath.Join(dir, "args.txt")
	m := fakeFFmpeg(t, `for a in "$@"; do echo "$a"; done > "`+argsPath+`"
for a in "$@"; do last="$a"; done
cat > "$last"
`, twoByOneStreams)

	out := filepath.Join(dir, "work.mp4")
	sink, err := m.CreateSink(context.Background(), out, SourceInfo{Width: 3, Height: 3, FPS: 25, FrameCount: 1})
	require.NoError(t, err)
	require.NoError(t, sink.WriteFrame(SolidFrame(3, 3, 1, 2, 3)))
	require.NoError(t, sink.Close())
	assert.Equal(t, out, sink.Path())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, SolidFrame(3, 3, 1, 2, 3).Pix, data)

	raw, err := os.ReadFile(argsPath)
	require.NoError(t, err)
	args := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Equal(t, []string{"-vf", EvenDimensionsFilter}, argPair(args, "-vf"))
	assert.Equal(t, []string{"-s", "3x3"}, argPair(args, "-s"))
	assert.Equal(t, []string{"-c:v", "libx264"}, argPair(args, "-c:v"))
	assert.Equal(t, out, args[len(args)-1])
}

func TestFFmpegSinkReportsEncoderStderr(t *testing.T) {
	m := fakeFFmpeg(t, "echo 'width not divisible by 2' >&2\nexit 1\n", twoByOneStreams)

	sink, err := m.CreateSink(context.Background(), filepath.Join(t.TempDir(), "work.mp4"), SourceInfo{Width: 2, Height: 2, FPS: 25})
	require.NoError(t, err)
	_ = sink.WriteFrame(SolidFrame(2, 2, 0, 0, 0))
	err = sink.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "width not divisible by 2")
	assert.NoError(t, sink.Close())
}

func TestPixelFormat(t *testing.T) {
	assert.Equal(t, "yuvj420p", PixelFormat("mjpeg"))
	assert.Equal(t, "yuv420p", PixelFormat("libx264"))
}

// argPair returns the flag and the value that follows it.
func argPair(args []string, flag string) []string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i : i+2]
		}
	}
	return nil
}
