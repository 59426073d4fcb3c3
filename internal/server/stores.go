package server

import (
	"fmt"
	"time"

	"github.com/amankumarsingh77/backdrop/internal/jobs"
	"github.com/amankumarsingh77/backdrop/internal/jobs/repository"
)

const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendPostgres = "postgres"
	backendLocal    = "local"
	backendS3       = "s3"
)

func (s *Server) newTracker() (jobs.Tracker, error) {
	switch s.cfg.Tracker.Backend {
	case "", backendMemory:
		return repository.NewMemoryTracker(), nil
	case backendRedis:
		if s.redisClient == nil {
			return nil, fmt.Errorf("tracker backend redis requires a redis connection")
		}
		return repository.NewRedisTracker(s.redisClient, time.Duration(s.cfg.Tracker.TTLHours)*time.Hour), nil
	case backendPostgres:
		if s.db == nil {
			return nil, fmt.Errorf("tracker backend postgres requires a database connection")
		}
		return repository.NewPgTracker(s.db), nil
	}
	return nil, fmt.Errorf("unknown tracker backend %q", s.cfg.Tracker.Backend)
}

func (s *Server) newArtifacts() (jobs.ArtifactRepository, error) {
	switch s.cfg.Storage.Backend {
	case "", backendLocal:
		return repository.NewLocalArtifacts(s.cfg.Storage.OutputDir), nil
	case backendS3:
		if s.s3Client == nil {
			return nil, fmt.Errorf("storage backend s3 requires an s3 client")
		}
		return repository.NewAwsArtifacts(s.s3Client, s.cfg.S3.OutputBucket, s.cfg.S3.Prefix, s.cfg.Storage.ScratchDir), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", s.cfg.Storage.Backend)
}
