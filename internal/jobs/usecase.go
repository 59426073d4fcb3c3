package jobs

import (
	"context"
	"io"

	"github.com/amankumarsingh77/backdrop/internal/models"
	"github.com/amankumarsingh77/backdrop/internal/mux"
)

type UseCase interface {
	Submit(ctx context.Context, input *models.SubmitInput, video models.Upload, background *models.Upload) (*models.SubmitResponse, error)
	Status(ctx context.Context, jobID string) (*models.StatusResponse, error)
	Preview(ctx context.Context, input *models.SubmitInput, video models.Upload, background *models.Upload) (*models.PreviewResponse, error)
	OpenOutput(ctx context.Context, ref string) (io.ReadCloser, int64, error)
}

// Dispatcher runs job tasks in the background.
type Dispatcher interface {
	Submit(task func(ctx context.Context)) error
}

// Finalizer produces the deliverable from the working video.
type Finalizer interface {
	Finalize(ctx context.Context, workingPath, sourcePath, finalPath string) (*mux.Outcome, error)
}
