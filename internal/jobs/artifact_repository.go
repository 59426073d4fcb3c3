package jobs

import (
	"context"
	"errors"
	"io"
)

var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactRepository stores final outputs under deterministic names.
type ArtifactRepository interface {
	// LocalPath is where the finalizer writes name before publishing.
	LocalPath(name string) string
	Exists(ctx context.Context, name string) (bool, error)
	// Publish makes the file at LocalPath(name) retrievable and returns its
	// output reference.
	Publish(ctx context.Context, name string) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, int64, error)
}
