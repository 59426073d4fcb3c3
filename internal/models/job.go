package models

import "time"

type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusNotFound   JobStatus = "not_found"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// FrameDiagnostic records a frame the pipeline skipped and why.
type FrameDiagnostic struct {
	Frame  int    `json:"frame"`
	Reason string `json:"reason"`
}

type Job struct {
	JobID         string            `json:"job_id" db:"job_id" redis:"job_id"`
	Status        JobStatus         `json:"status" db:"status" redis:"status"`
	Progress      int               `json:"progress" db:"progress" redis:"progress"`
	OutputRef     string            `json:"output_ref,omitempty" db:"output_ref" redis:"output_ref"`
	Error         string            `json:"error,omitempty" db:"error" redis:"error"`
	FramesWritten int               `json:"frames_written" db:"frames_written" redis:"frames_written"`
	HasAudio      bool              `json:"has_audio" db:"has_audio" redis:"has_audio"`
	Cached        bool              `json:"cached" db:"cached" redis:"cached"`
	Diagnostics   []FrameDiagnostic `json:"diagnostics,omitempty" db:"-" redis:"-"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at" redis:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at" redis:"updated_at"`
}

// Clone returns a deep copy so callers never share the diagnostics slice.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Diagnostics != nil {
		c.Diagnostics = append([]FrameDiagnostic(nil), j.Diagnostics...)
	}
	return &c
}

// Completion carries the terminal success fields of a job.
type Completion struct {
	OutputRef     string
	FramesWritten int
	HasAudio      bool
	Cached        bool
	Diagnostics   []FrameDiagnostic
}

// StatusResponse is what polling clients see. It is well-formed for every
// id, including unknown ones.
type StatusResponse struct {
	JobID         string            `json:"job_id"`
	Status        JobStatus         `json:"status"`
	Progress      int               `json:"progress"`
	OutputRef     string            `json:"output_ref,omitempty"`
	DownloadURL   string            `json:"download_url,omitempty"`
	Error         string            `json:"error,omitempty"`
	FramesWritten int               `json:"frames_written,omitempty"`
	HasAudio      bool              `json:"has_audio"`
	Cached        bool              `json:"cached"`
	Diagnostics   []FrameDiagnostic `json:"diagnostics,omitempty"`
	CreatedAt     *time.Time        `json:"created_at,omitempty"`
}

func NewStatusResponse(jobID string, job *Job) *StatusResponse {
	if job == nil {
		return &StatusResponse{JobID: jobID, Status: JobStatusNotFound}
	}
	created := job.CreatedAt
	return &StatusResponse{
		JobID:         job.JobID,
		Status:        job.Status,
		Progress:      job.Progress,
		OutputRef:     job.OutputRef,
		Error:         job.Error,
		FramesWritten: job.FramesWritten,
		HasAudio:      job.HasAudio,
		Cached:        job.Cached,
		Diagnostics:   job.Diagnostics,
		CreatedAt:     &created,
	}
}
