package worker

import (
	"context"
	"errors"
)

var (
	ErrQueueFull   = errors.New("worker queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Task is one unit of background work. ctx is cancelled when the pool is
// stopped before the task returns.
type Task func(ctx context.Context)

// loadFunc reports whether the host can take another task and the current
// CPU usage.
type loadFunc func(maxUsage float64) (bool, float64)
