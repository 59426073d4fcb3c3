package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"clip.mp4":            "clip.mp4",
		"../../etc/passwd":    "passwd",
		"my holiday clip.mov": "my_holiday_clip.mov",
		"..":                  "video.mp4",
		"C:\\videos\\a.mp4":   "a.mp4",
		"ünï.mp4":             "n.mp4",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFileName(in, "video.mp4"), in)
	}
}

func TestMoveFileAndSize(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.bin")
	dst := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	require.NoError(t, MoveFile(src, dst))
	assert.Equal(t, int64(5), FileSize(dst))
	assert.Equal(t, int64(-1), FileSize(src))

	RemoveQuietly(dst, "", filepath.Join(dir, "missing"))
	assert.Equal(t, int64(-1), FileSize(dst))
}
