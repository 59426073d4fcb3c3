package mux

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/amankumarsingh77/backdrop/internal/config"
	"github.com/amankumarsingh77/backdrop/internal/media"
	"github.com/amankumarsingh77/backdrop/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const writeLastArg = `for a in "$@"; do last="$a"; done
echo "produced by fake tool" > "$last"
`

func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	p := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

func mediaConfig() config.MediaConfig {
	return config.MediaConfig{
		Codecs:         []string{"libx264", "mpeg4"},
		ProbeTimeout:   5 * time.Second,
		ExtractTimeout: 5 * time.Second,
		MuxTimeout:     5 * time.Second,
	}
}

type fixture struct {
	dir, working, source, final, scratch string
}

func newFixture(t *testing.T) fixture {
	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		working: filepath.Join(dir, "working.mp4"),
		source:  filepath.Join(dir, "source.mp4"),
		final:   filepath.Join(dir, "out", "final.mp4"),
		scratch: filepath.Join(dir, "scratch"),
	}
	require.NoError(t, os.WriteFile(f.working, []byte("silent video"), 0o644))
	require.NoError(t, os.WriteFile(f.source, []byte("source video"), 0o644))
	require.NoError(t, os.MkdirAll(f.scratch, 0o755))
	return f
}

func (f fixture) assertScratchEmpty(t *testing.T) {
	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFinalizeWithoutRemuxTool(t *testing.T) {
	f := newFixture(t)
	fin := NewFinalizer(&Capabilities{Codecs: []string{"mpeg4"}}, mediaConfig(), f.scratch, logger.NewNop())

	out, err := fin.Finalize(context.Background(), f.working, f.source, f.final)
	require.NoError(t, err)
	assert.False(t, out.HasAudio)

	data, err := os.ReadFile(f.final)
	require.NoError(t, err)
	assert.Equal(t, "silent video", string(data))
	assert.NoFileExists(t, f.working)
}

func TestFinalizeExtractionFailureKeepsSilentVideo(t *testing.T) {
	f := newFixture(t)
	tool := fakeTool(t, "exit 1\n")
	fin := NewFinalizer(&Capabilities{RemuxPath: tool, Codecs: []string{"mpeg4"}}, mediaConfig(), f.scratch, logger.NewNop())

	out, err := fin.Finalize(context.Background(), f.working, f.source, f.final)
	require.NoError(t, err)
	assert.False(t, out.HasAudio)
	data, err := os.ReadFile(f.final)
	require.NoError(t, err)
	assert.Equal(t, "silent video", string(data))
	f.assertScratchEmpty(t)
}

func TestFinalizeMuxesAudio(t *testing.T) {
	f := newFixture(t)
	tool := fakeTool(t, writeLastArg)
	fin := NewFinalizer(&Capabilities{RemuxPath: tool, Codecs: []string{"libx264"}}, mediaConfig(), f.scratch, logger.NewNop())

	out, err := fin.Finalize(context.Background(), f.working, f.source, f.final)
	require.NoError(t, err)
	assert.True(t, out.HasAudio)

	data, err := os.ReadFile(f.final)
	require.NoError(t, err)
	assert.Equal(t, "produced by fake tool\n", string(data))
	assert.NoFileExists(t, f.working)
	f.assertScratchEmpty(t)
}

func TestFinalizeRemuxPadsOddDimensions(t *testing.T) {
	f := newFixture(t)
	argsPath := filepath.Join(f.dir, "args.txt")
	tool := fakeTool(t, `echo "$@" >> "`+argsPath+`"
`+writeLastArg)
	fin := NewFinalizer(&Capabilities{RemuxPath: tool, Codecs: []string{"libx264"}}, mediaConfig(), f.scratch, logger.NewNop())

	_, err := fin.Finalize(context.Background(), f.working, f.source, f.final)
	require.NoError(t, err)

	raw, err := os.ReadFile(argsPath)
	require.NoError(t, err)
	calls := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[0], "-vf")
	assert.Contains(t, calls[1], "-vf "+media.EvenDimensionsFilter+" -c:v libx264 -pix_fmt yuv420p")
}

func TestFinalizeMuxFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	tool := fakeTool(t, `for a in "$@"; do
  if [ "$a" = "-map" ]; then exit 1; fi
done
`+writeLastArg)
	fin := NewFinalizer(&Capabilities{RemuxPath: tool, Codecs: []string{"mpeg4"}}, mediaConfig(), f.scratch, logger.NewNop())

	out, err := fin.Finalize(context.Background(), f.working, f.source, f.final)
	require.NoError(t, err)
	assert.False(t, out.HasAudio)
	data, err := os.ReadFile(f.final)
	require.NoError(t, err)
	assert.Equal(t, "silent video", string(data))
	f.assertScratchEmpty(t)
}

func TestFinalizeMissingWorkingFile(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.working))
	fin := NewFinalizer(&Capabilities{}, mediaConfig(), f.scratch, logger.NewNop())

	_, err := fin.Finalize(context.Background(), f.working, f.source, f.final)
	assert.Error(t, err)
}

func TestDiscoverFiltersCodecs(t *testing.T) {
	tool := fakeTool(t, `for a in "$@"; do
  if [ "$a" = "mpeg4" ] || [ "$a" = "-version" ]; then exit 0; fi
done
exit 1
`)
	cfg := mediaConfig()
	cfg.FFmpegPath = tool
	cfg.RemuxToolPath = tool

	caps, err := Discover(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"mpeg4"}, caps.Codecs)
	assert.Equal(t, "mpeg4", caps.Codec())
	assert.Equal(t, tool, caps.RemuxPath)
	assert.True(t, caps.AudioSupported())
}

func TestDiscoverWithoutCodecs(t *testing.T) {
	tool := fakeTool(t, "exit 1\n")
	cfg := mediaConfig()
	cfg.FFmpegPath = tool

	_, err := Discover(context.Background(), cfg, logger.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCodecAvailable))
	var noCodec *NoCodecAvailableError
	require.True(t, errors.As(err, &noCodec))
	assert.Equal(t, cfg.Codecs, noCodec.Tried)
}

func TestFindRemuxToolMissing(t *testing.T) {
	cfg := mediaConfig()
	cfg.RemuxCandidates = []string{filepath.Join(t.TempDir(), "nothing-here")}
	assert.Equal(t, "", FindRemuxTool(context.Background(), cfg))
}
