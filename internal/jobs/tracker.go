package jobs

import (
	"context"
	"errors"

	"github.com/amankumarsingh77/backdrop/internal/models"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobInProgress = errors.New("job is already processing")
)

// Tracker records job lifecycle and progress. Only the worker running a job
// writes to that job's record. Progress updates to a terminal job are
// ignored.
type Tracker interface {
	Create(ctx context.Context, jobID string) (*models.Job, error)
	// Claim is Create, but fails with ErrJobInProgress when jobID is already
	// processing. At most one concurrent caller wins a given id.
	Claim(ctx context.Context, jobID string) (*models.Job, error)
	SetProgress(ctx context.Context, jobID string, percent int) error
	SetCompleted(ctx context.Context, jobID string, c models.Completion) error
	SetFailed(ctx context.Context, jobID string, message string) error
	Get(ctx context.Context, jobID string) (*models.Job, error)
}
