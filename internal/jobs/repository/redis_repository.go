package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amankumarsingh77/backdrop/internal/jobs"
	"github.com/amankumarsingh77/backdrop/internal/models"
	"github.com/go-redis/redis/v8"
)

const (
	jobKeyPrefix = "job:"
	claimRetries = 5
)

type redisTracker struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisTracker stores each job as a hash at job:<id> that expires ttl
// after its last write.
func NewRedisTracker(redisClient *redis.Client, ttl time.Duration) jobs.Tracker {
	return &redisTracker{redisClient: redisClient, ttl: ttl}
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

func (r *redisTracker) write(ctx context.Context, jobID string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), fields)
	if r.ttl > 0 {
		pipe.Expire(ctx, jobKey(jobID), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	return nil
}

func (r *redisTracker) exists(ctx context.Context, jobID string) (models.JobStatus, error) {
	status, err := r.redisClient.HGet(ctx, jobKey(jobID), "status").Result()
	if err == redis.Nil {
		return "", jobs.ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get job status: %w", err)
	}
	return models.JobStatus(status), nil
}

func createFields(jobID string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"job_id":     jobID,
		"status":     string(models.JobStatusProcessing),
		"progress":   0,
		"created_at": now.Format(time.RFC3339Nano),
		"updated_at": now.Format(time.RFC3339Nano),
	}
}

func (r *redisTracker) Create(ctx context.Context, jobID string) (*models.Job, error) {
	now := time.Now().UTC()
	if err := r.redisClient.Del(ctx, jobKey(jobID)).Err(); err != nil {
		return nil, fmt.Errorf("failed to reset job %s: %w", jobID, err)
	}
	if err := r.write(ctx, jobID, createFields(jobID, now)); err != nil {
		return nil, err
	}
	return &models.Job{JobID: jobID, Status: models.JobStatusProcessing, CreatedAt: now, UpdatedAt: now}, nil
}

// Claim resets job:<id> inside a WATCH transaction so two claimants of the
// same id cannot both see it idle.
func (r *redisTracker) Claim(ctx context.Context, jobID string) (*models.Job, error) {
	key := jobKey(jobID)
	now := time.Now().UTC()
	claim := func(tx *redis.Tx) error {
		status, err := tx.HGet(ctx, key, "status").Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if models.JobStatus(status) == models.JobStatusProcessing {
			return jobs.ErrJobInProgress
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, createFields(jobID, now))
			if r.ttl > 0 {
				pipe.Expire(ctx, key, r.ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < claimRetries; i++ {
		err := r.redisClient.Watch(ctx, claim, key)
		switch {
		case err == nil:
			return &models.Job{JobID: jobID, Status: models.JobStatusProcessing, CreatedAt: now, UpdatedAt: now}, nil
		case errors.Is(err, jobs.ErrJobInProgress):
			return nil, err
		case err == redis.TxFailedErr:
			// another writer touched the key; look again
			continue
		default:
			return nil, fmt.Errorf("failed to claim job %s: %w", jobID, err)
		}
	}
	return nil, jobs.ErrJobInProgress
}

func (r *redisTracker) SetProgress(ctx context.Context, jobID string, percent int) error {
	status, err := r.exists(ctx, jobID)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return nil
	}
	return r.write(ctx, jobID, map[string]interface{}{"progress": clampPercent(percent)})
}

func (r *redisTracker) SetCompleted(ctx context.Context, jobID string, c models.Completion) error {
	if _, err := r.exists(ctx, jobID); err != nil {
		return err
	}
	diagnostics, err := json.Marshal(c.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	return r.write(ctx, jobID, map[string]interface{}{
		"status":         string(models.JobStatusCompleted),
		"progress":       100,
		"output_ref":     c.OutputRef,
		"frames_written": c.FramesWritten,
		"has_audio":      c.HasAudio,
		"cached":         c.Cached,
		"diagnostics":    string(diagnostics),
		"error":          "",
	})
}

func (r *redisTracker) SetFailed(ctx context.Context, jobID string, message string) error {
	if _, err := r.exists(ctx, jobID); err != nil {
		return err
	}
	return r.write(ctx, jobID, map[string]interface{}{
		"status": string(models.JobStatusFailed),
		"error":  message,
	})
}

func (r *redisTracker) Get(ctx context.Context, jobID string) (*models.Job, error) {
	fields, err := r.redisClient.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, jobs.ErrJobNotFound
	}
	job := &models.Job{
		JobID:     fields["job_id"],
		Status:    models.JobStatus(fields["status"]),
		OutputRef: fields["output_ref"],
		Error:     fields["error"],
	}
	job.Progress, _ = strconv.Atoi(fields["progress"])
	job.FramesWritten, _ = strconv.Atoi(fields["frames_written"])
	job.HasAudio, _ = strconv.ParseBool(fields["has_audio"])
	job.Cached, _ = strconv.ParseBool(fields["cached"])
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	if raw := fields["diagnostics"]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &job.Diagnostics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
		}
	}
	return job, nil
}
