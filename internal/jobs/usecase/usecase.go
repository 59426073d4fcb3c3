package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/amankumarsingh77/backdrop/internal/config"
	"github.com/amankumarsingh77/backdrop/internal/jobs"
	"github.com/amankumarsingh77/backdrop/internal/matting"
	"github.com/amankumarsingh77/backdrop/internal/media"
	"github.com/amankumarsingh77/backdrop/internal/models"
	"github.com/amankumarsingh77/backdrop/internal/pipeline"
	"github.com/amankumarsingh77/backdrop/pkg/logger"
	"github.com/amankumarsingh77/backdrop/pkg/utils"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type jobsUC struct {
	cfg        *config.Config
	tracker    jobs.Tracker
	artifacts  jobs.ArtifactRepository
	backend    media.Backend
	oracles    matting.Factory
	pipeline   *pipeline.Pipeline
	finalizer  jobs.Finalizer
	dispatcher jobs.Dispatcher
	logger     logger.Logger
}

func NewJobsUseCase(
	cfg *config.Config,
	tracker jobs.Tracker,
	artifacts jobs.ArtifactRepository,
	backend media.Backend,
	oracles matting.Factory,
	pl *pipeline.Pipeline,
	finalizer jobs.Finalizer,
	dispatcher jobs.Dispatcher,
	log logger.Logger,
) jobs.UseCase {
	return &jobsUC{
		cfg:        cfg,
		tracker:    tracker,
		artifacts:  artifacts,
		backend:    backend,
		oracles:    oracles,
		pipeline:   pl,
		finalizer:  finalizer,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// OutputName is the deterministic artifact name for a job.
func OutputName(input *models.SubmitInput) string {
	name := fmt.Sprintf("out_%s_%s", input.JobID, input.VideoName)
	if input.OutputDir != "" {
		return path.Join(utils.SanitizeFileName(input.OutputDir, ""), name)
	}
	return name
}

func (u *jobsUC) prepare(ctx context.Context, input *models.SubmitInput, video models.Upload) error {
	if input == nil {
		return errors.Wrap(jobs.ErrInvalidInput, "input is nil")
	}
	if video.Reader == nil {
		return errors.Wrap(jobs.ErrInvalidInput, "video is required")
	}
	if video.Name != "" {
		input.VideoName = video.Name
	}
	input.VideoName = utils.SanitizeFileName(input.VideoName, "video.mp4")
	if input.JobID == "" {
		input.JobID = uuid.New().String()
	}
	if err := utils.ValidateStruct(ctx, input); err != nil {
		return errors.Wrap(jobs.ErrInvalidInput, err.Error())
	}
	return nil
}

func (u *jobsUC) Submit(ctx context.Context, input *models.SubmitInput, video models.Upload, background *models.Upload) (*models.SubmitResponse, error) {
	if err := u.prepare(ctx, input, video); err != nil {
		u.logger.Errorf("Submit - prepare error: %v", err)
		return nil, err
	}
	jobID := input.JobID
	outName := OutputName(input)

	if _, err := u.tracker.Claim(ctx, jobID); err != nil {
		if errors.Is(err, jobs.ErrJobInProgress) {
			u.logger.Infof("Submit - job %s already processing", jobID)
			return &models.SubmitResponse{JobID: jobID, Status: models.JobStatusProcessing, OutputName: outName}, nil
		}
		return nil, errors.Wrap(err, "jobsUC.Submit.Claim")
	}

	cached, err := u.artifacts.Exists(ctx, outName)
	if err != nil {
		u.fail(ctx, jobID, "output storage unavailable")
		return nil, errors.Wrap(err, "jobsUC.Submit.Exists")
	}
	if cached {
		if err := u.tracker.SetCompleted(ctx, jobID, models.Completion{OutputRef: outName, Cached: true}); err != nil {
			u.fail(ctx, jobID, "internal error")
			return nil, errors.Wrap(err, "jobsUC.Submit.SetCompleted")
		}
		u.logger.Infof("Submit - job %s served from cache: %s", jobID, outName)
		return &models.SubmitResponse{JobID: jobID, Status: models.JobStatusCompleted, Cached: true, OutputName: outName}, nil
	}

	if err := u.saveUploads(input, video, background); err != nil {
		utils.RemoveQuietly(input.VideoPath, input.BackgroundPath)
		u.fail(ctx, jobID, "upload could not be stored")
		return nil, errors.Wrap(err, "jobsUC.Submit.SaveUpload")
	}

	job := *input
	if err := u.dispatcher.Submit(func(ctx context.Context) { u.runJob(ctx, &job) }); err != nil {
		utils.RemoveQuietly(input.VideoPath, input.BackgroundPath)
		u.fail(ctx, jobID, "service busy")
		u.logger.Errorf("Submit - dispatch job %s: %v", jobID, err)
		return nil, errors.Wrap(err, "jobsUC.Submit.Dispatch")
	}
	u.logger.Infof("Submit - job %s accepted: %s", jobID, input.VideoName)
	return &models.SubmitResponse{JobID: jobID, Status: models.JobStatusProcessing, OutputName: outName}, nil
}

func (u *jobsUC) fail(ctx context.Context, jobID, message string) {
	if err := u.tracker.SetFailed(context.WithoutCancel(ctx), jobID, message); err != nil {
		u.logger.Errorf("SetFailed %s: %v", jobID, err)
	}
}

func (u *jobsUC) saveUploads(input *models.SubmitInput, video models.Upload, background *models.Upload) error {
	dir := u.cfg.Storage.UploadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	input.VideoPath = filepath.Join(dir, fmt.Sprintf("%s_%s", input.JobID, input.VideoName))
	if err := saveUpload(input.VideoPath, video.Reader); err != nil {
		return err
	}
	input.BackgroundPath = ""
	if background != nil && background.Reader != nil {
		name := utils.SanitizeFileName(background.Name, "background.png")
		input.BackgroundPath = filepath.Join(dir, fmt.Sprintf("bg_%s_%s", input.JobID, name))
		if err := saveUpload(input.BackgroundPath, background.Reader); err != nil {
			utils.RemoveQuietly(input.VideoPath)
			return err
		}
	}
	return nil
}

func saveUpload(dst string, r io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return err
	}
	return f.Close()
}

// runJob drives one job to a terminal state. It never panics and always
// removes the job's uploads.
func (u *jobsUC) runJob(ctx context.Context, input *models.SubmitInput) {
	defer utils.RemoveQuietly(input.VideoPath, input.BackgroundPath)
	defer func() {
		if r := recover(); r != nil {
			u.logger.Errorf("runJob - job %s panicked: %v", input.JobID, r)
			_ = u.tracker.SetFailed(context.Background(), input.JobID, "internal error")
		}
	}()

	u.logger.Infof("runJob - job %s started", input.JobID)
	completion, err := u.render(ctx, input)
	if err != nil {
		u.logger.Errorf("runJob - job %s failed: %v", input.JobID, err)
		u.fail(context.Background(), input.JobID, failureMessage(err))
		return
	}
	if err := u.tracker.SetCompleted(ctx, input.JobID, *completion); err != nil {
		u.logger.Errorf("runJob - SetCompleted %s: %v", input.JobID, err)
		return
	}
	u.logger.Infof("runJob - job %s completed: %d frames, audio=%t, %d skipped",
		input.JobID, completion.FramesWritten, completion.HasAudio, len(completion.Diagnostics))
}

func (u *jobsUC) render(ctx context.Context, input *models.SubmitInput) (*models.Completion, error) {
	oracle, err := u.oracles(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errOracleStart, err)
	}
	defer oracle.Close()

	src, err := u.openSource(ctx, input.VideoPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if err := os.MkdirAll(u.cfg.Storage.ScratchDir, 0o755); err != nil {
		return nil, err
	}
	working := filepath.Join(u.cfg.Storage.ScratchDir, fmt.Sprintf("work_%s.mp4", input.JobID))
	newSink := func(info media.SourceInfo) (media.Sink, error) {
		return u.backend.CreateSink(ctx, working, info)
	}

	last := -1
	progress := func(processed, total int) {
		pct := processed * 100 / total
		if pct == last {
			return
		}
		last = pct
		if err := u.tracker.SetProgress(ctx, input.JobID, pct); err != nil {
			u.logger.Warnf("runJob - SetProgress %s: %v", input.JobID, err)
		}
	}

	res, err := u.pipeline.Process(ctx, src, newSink, oracle, input.Options(), progress)
	if err != nil {
		utils.RemoveQuietly(working)
		return nil, err
	}
	for _, d := range res.Diagnostics {
		u.logger.Warnf("runJob - job %s frame %d skipped: %s", input.JobID, d.Frame, d.Reason)
	}

	outName := OutputName(input)
	outcome, err := u.finalizer.Finalize(ctx, res.WorkingPath, input.VideoPath, u.artifacts.LocalPath(outName))
	if err != nil {
		utils.RemoveQuietly(working)
		return nil, fmt.Errorf("finalize output: %w", err)
	}
	if !outcome.HasAudio {
		u.logger.Infof("runJob - job %s delivered without audio", input.JobID)
	}
	ref, err := u.artifacts.Publish(ctx, outName)
	if err != nil {
		return nil, fmt.Errorf("publish output: %w", err)
	}
	return &models.Completion{
		OutputRef:     ref,
		FramesWritten: res.FramesWritten,
		HasAudio:      outcome.HasAudio,
		Diagnostics:   res.Diagnostics,
	}, nil
}

// openSource keeps decoder and probe output out of the error; it can carry
// absolute paths.
func (u *jobsUC) openSource(ctx context.Context, path string) (media.Source, error) {
	src, err := u.backend.OpenSource(ctx, path)
	if err != nil {
		u.logger.Warnf("openSource - %s: %v", path, err)
		return nil, &pipeline.InvalidSourceError{Reason: "unreadable video"}
	}
	return src, nil
}

func (u *jobsUC) Status(ctx context.Context, jobID string) (*models.StatusResponse, error) {
	job, err := u.tracker.Get(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		return models.NewStatusResponse(jobID, nil), nil
	}
	if err != nil {
		u.logger.Errorf("Status - Get %s: %v", jobID, err)
		return nil, errors.Wrap(err, "jobsUC.Status.Get")
	}
	return models.NewStatusResponse(jobID, job), nil
}

func (u *jobsUC) Preview(ctx context.Context, input *models.SubmitInput, video models.Upload, background *models.Upload) (*models.PreviewResponse, error) {
	if err := u.prepare(ctx, input, video); err != nil {
		return nil, err
	}
	input.JobID = "preview_" + uuid.New().String()
	if err := u.saveUploads(input, video, background); err != nil {
		return nil, errors.Wrap(err, "jobsUC.Preview.SaveUpload")
	}
	defer utils.RemoveQuietly(input.VideoPath, input.BackgroundPath)

	oracle, err := u.oracles(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "jobsUC.Preview.Oracle")
	}
	defer oracle.Close()

	src, err := u.openSource(ctx, input.VideoPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	frame, err := u.pipeline.Preview(ctx, src, oracle, input.Options())
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, frame.ToNRGBA(), imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, errors.Wrap(err, "jobsUC.Preview.Encode")
	}
	return &models.PreviewResponse{
		Image:  "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:  frame.Width,
		Height: frame.Height,
	}, nil
}

func (u *jobsUC) OpenOutput(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	rc, size, err := u.artifacts.Open(ctx, ref)
	if err != nil {
		if !errors.Is(err, jobs.ErrArtifactNotFound) {
			u.logger.Errorf("OpenOutput - Open %s: %v", ref, err)
		}
		return nil, 0, err
	}
	return rc, size, nil
}
