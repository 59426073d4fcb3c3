package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amankumarsingh77/backdrop/internal/jobs"
	"github.com/amankumarsingh77/backdrop/internal/models"
	"github.com/jmoiron/sqlx"
)

type pgTracker struct {
	db *sqlx.DB
}

// NewPgTracker stores jobs in the matting_jobs table.
func NewPgTracker(db *sqlx.DB) jobs.Tracker {
	return &pgTracker{db: db}
}

// EnsureSchema creates the matting_jobs table when missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, createJobsTableQuery); err != nil {
		return fmt.Errorf("failed to create matting_jobs: %w", err)
	}
	return nil
}

type jobRow struct {
	JobID         string    `db:"job_id"`
	Status        string    `db:"status"`
	Progress      int       `db:"progress"`
	OutputRef     string    `db:"output_ref"`
	Error         string    `db:"error"`
	FramesWritten int       `db:"frames_written"`
	HasAudio      bool      `db:"has_audio"`
	Cached        bool      `db:"cached"`
	Diagnostics   []byte    `db:"diagnostics"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r *jobRow) toJob() (*models.Job, error) {
	job := &models.Job{
		JobID:         r.JobID,
		Status:        models.JobStatus(r.Status),
		Progress:      r.Progress,
		OutputRef:     r.OutputRef,
		Error:         r.Error,
		FramesWritten: r.FramesWritten,
		HasAudio:      r.HasAudio,
		Cached:        r.Cached,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if len(r.Diagnostics) > 0 {
		if err := json.Unmarshal(r.Diagnostics, &job.Diagnostics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
		}
		if len(job.Diagnostics) == 0 {
			job.Diagnostics = nil
		}
	}
	return job, nil
}

func (p *pgTracker) Create(ctx context.Context, jobID string) (*models.Job, error) {
	row := &jobRow{}
	if err := p.db.QueryRowxContext(ctx, createJobQuery, jobID).StructScan(row); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return row.toJob()
}

// Claim relies on the conditional upsert: a row that is still processing is
// left untouched and nothing is returned.
func (p *pgTracker) Claim(ctx context.Context, jobID string) (*models.Job, error) {
	row := &jobRow{}
	if err := p.db.QueryRowxContext(ctx, claimJobQuery, jobID).StructScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrJobInProgress
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return row.toJob()
}

func (p *pgTracker) mustExist(ctx context.Context, jobID string) error {
	var exists bool
	if err := p.db.GetContext(ctx, &exists, jobExistsQuery, jobID); err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if !exists {
		return jobs.ErrJobNotFound
	}
	return nil
}

func (p *pgTracker) SetProgress(ctx context.Context, jobID string, percent int) error {
	if err := p.mustExist(ctx, jobID); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, setProgressQuery, jobID, clampPercent(percent)); err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

func (p *pgTracker) SetCompleted(ctx context.Context, jobID string, c models.Completion) error {
	diagnostics := c.Diagnostics
	if diagnostics == nil {
		diagnostics = []models.FrameDiagnostic{}
	}
	raw, err := json.Marshal(diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	res, err := p.db.ExecContext(ctx, setCompletedQuery, jobID, c.OutputRef, c.FramesWritten, c.HasAudio, c.Cached, string(raw))
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return affected(res)
}

func (p *pgTracker) SetFailed(ctx context.Context, jobID string, message string) error {
	res, err := p.db.ExecContext(ctx, setFailedQuery, jobID, message)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return affected(res)
}

func (p *pgTracker) Get(ctx context.Context, jobID string) (*models.Job, error) {
	row := &jobRow{}
	if err := p.db.GetContext(ctx, row, getJobQuery, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toJob()
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return jobs.ErrJobNotFound
	}
	return nil
}
