package repository

const (
	createJobsTableQuery = `CREATE TABLE IF NOT EXISTS matting_jobs (
					job_id         TEXT PRIMARY KEY,
					status         TEXT NOT NULL,
					progress       INTEGER NOT NULL DEFAULT 0,
					output_ref     TEXT NOT NULL DEFAULT '',
					error          TEXT NOT NULL DEFAULT '',
					frames_written INTEGER NOT NULL DEFAULT 0,
					has_audio      BOOLEAN NOT NULL DEFAULT FALSE,
					cached         BOOLEAN NOT NULL DEFAULT FALSE,
					diagnostics    JSONB NOT NULL DEFAULT '[]'::jsonb,
					created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
				)`
	createJobQuery = `INSERT INTO matting_jobs (job_id, status) VALUES ($1, 'processing')
					ON CONFLICT (job_id) DO UPDATE
					SET status = 'processing', progress = 0, output_ref = '', error = '', frames_written = 0,
					    has_audio = FALSE, cached = FALSE, diagnostics = '[]'::jsonb, created_at = now(), updated_at = now()
					RETURNING job_id, status, progress, output_ref, error, frames_written, has_audio, cached, diagnostics, created_at, updated_at`
	claimJobQuery = `INSERT INTO matting_jobs (job_id, status) VALUES ($1, 'processing')
					ON CONFLICT (job_id) DO UPDATE
					SET status = 'processing', progress = 0, output_ref = '', error = '', frames_written = 0,
					    has_audio = FALSE, cached = FALSE, diagnostics = '[]'::jsonb, created_at = now(), updated_at = now()
					WHERE matting_jobs.status <> 'processing'
					RETURNING job_id, status, progress, output_ref, error, frames_written, has_audio, cached, diagnostics, created_at, updated_at`
	setProgressQuery = `UPDATE matting_jobs SET progress = $2, updated_at = now()
					WHERE job_id = $1 AND status = 'processing'`
	setCompletedQuery = `UPDATE matting_jobs
					SET status = 'completed', progress = 100, output_ref = $2, frames_written = $3,
					    has_audio = $4, cached = $5, diagnostics = $6, error = '', updated_at = now()
					WHERE job_id = $1`
	setFailedQuery = `UPDATE matting_jobs SET status = 'failed', error = $2, updated_at = now() WHERE job_id = $1`
	jobExistsQuery = `SELECT EXISTS(SELECT 1 FROM matting_jobs WHERE job_id = $1)`
	getJobQuery    = `SELECT job_id, status, progress, output_ref, error, frames_written, has_audio, cached, diagnostics, created_at, updated_at
					FROM matting_jobs WHERE job_id = $1`
)
