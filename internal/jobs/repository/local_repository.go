package repository

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/amankumarsingh77/backdrop/internal/jobs"
)

type localArtifacts struct {
	root string
}

// NewLocalArtifacts serves outputs straight from dir.
func NewLocalArtifacts(dir string) jobs.ArtifactRepository {
	return &localArtifacts{root: dir}
}

// cleanRef rejects references that would escape the output root.
func cleanRef(ref string) (string, error) {
	ref = strings.TrimPrefix(filepath.ToSlash(ref), "/")
	clean := filepath.Clean(ref)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid output reference %q", ref)
	}
	return clean, nil
}

func (l *localArtifacts) LocalPath(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(name))
}

func (l *localArtifacts) Exists(_ context.Context, name string) (bool, error) {
	info, err := os.Stat(l.LocalPath(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (l *localArtifacts) Publish(_ context.Context, name string) (string, error) {
	if _, err := os.Stat(l.LocalPath(name)); err != nil {
		return "", fmt.Errorf("publish %s: %w", name, err)
	}
	return name, nil
}

func (l *localArtifacts) Open(_ context.Context, ref string) (io.ReadCloser, int64, error) {
	clean, err := cleanRef(ref)
	if err != nil {
		return nil, 0, jobs.ErrArtifactNotFound
	}
	f, err := os.Open(l.LocalPath(clean))
	if os.IsNotExist(err) {
		return nil, 0, jobs.ErrArtifactNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, 0, jobs.ErrArtifactNotFound
	}
	return f, info.Size(), nil
}
