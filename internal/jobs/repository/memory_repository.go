package repository

import (
	"context"
	"sync"
	"time"

	"github.com/amankumarsingh77/backdrop/internal/jobs"
	"github.com/amankumarsingh77/backdrop/internal/models"
)

type memoryTracker struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// NewMemoryTracker keeps jobs for the lifetime of the process.
func NewMemoryTracker() jobs.Tracker {
	return &memoryTracker{jobs: make(map[string]*models.Job)}
}

func newJob(jobID string) *models.Job {
	now := time.Now().UTC()
	return &models.Job{JobID: jobID, Status: models.JobStatusProcessing, CreatedAt: now, UpdatedAt: now}
}

func (m *memoryTracker) Create(_ context.Context, jobID string) (*models.Job, error) {
	job := newJob(jobID)
	m.mu.Lock()
	m.jobs[jobID] = job
	m.mu.Unlock()
	return job.Clone(), nil
}

func (m *memoryTracker) Claim(_ context.Context, jobID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.jobs[jobID]; ok && existing.Status == models.JobStatusProcessing {
		return nil, jobs.ErrJobInProgress
	}
	job := newJob(jobID)
	m.jobs[jobID] = job
	return job.Clone(), nil
}

func (m *memoryTracker) update(jobID string, fn func(*models.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return jobs.ErrJobNotFound
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryTracker) SetProgress(_ context.Context, jobID string, percent int) error {
	return m.update(jobID, func(j *models.Job) {
		if j.Status.Terminal() {
			return
		}
		j.Progress = clampPercent(percent)
	})
}

func (m *memoryTracker) SetCompleted(_ context.Context, jobID string, c models.Completion) error {
	return m.update(jobID, func(j *models.Job) {
		j.Status = models.JobStatusCompleted
		j.Progress = 100
		j.OutputRef = c.OutputRef
		j.FramesWritten = c.FramesWritten
		j.HasAudio = c.HasAudio
		j.Cached = c.Cached
		j.Diagnostics = append([]models.FrameDiagnostic(nil), c.Diagnostics...)
		j.Error = ""
	})
}

func (m *memoryTracker) SetFailed(_ context.Context, jobID string, message string) error {
	return m.update(jobID, func(j *models.Job) {
		j.Status = models.JobStatusFailed
		j.Error = message
	})
}

func (m *memoryTracker) Get(_ context.Context, jobID string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	return job.Clone(), nil
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
