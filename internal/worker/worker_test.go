package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amankumarsingh77/backdrop/internal/config"
	"github.com/amankumarsingh77/backdrop/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(config.WorkerConfig{WorkerCount: 2, QueueSize: 8}, logger.NewNop())
	p.Start()

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(context.Context) {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
	require.NoError(t, p.Stop(context.Background()))
}

func TestPoolQueueFull(t *testing.T) {
	p := NewPool(config.WorkerConfig{WorkerCount: 1, QueueSize: 1}, logger.NewNop())
	release := make(chan struct{})
	started := make(chan struct{})
	p.Start()

	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(func(context.Context) {}))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrQueueFull)

	close(release)
	require.NoError(t, p.Stop(context.Background()))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolStopped)
}

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool(config.WorkerConfig{WorkerCount: 1, QueueSize: 2}, logger.NewNop())
	p.Start()

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	require.NoError(t, p.Stop(context.Background()))
}

func TestPoolWaitsForCPU(t *testing.T) {
	p := NewPool(config.WorkerConfig{WorkerCount: 1, QueueSize: 1, MaxCPUUsage: 50, CheckInterval: time.Millisecond}, logger.NewNop())
	var checks int32
	p.load = func(float64) (bool, float64) {
		return atomic.AddInt32(&checks, 1) > 3, 90
	}
	p.Start()

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) { close(done) }))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task never admitted")
	}
	assert.Equal(t, int32(4), atomic.LoadInt32(&checks))
	require.NoError(t, p.Stop(context.Background()))
}

func TestPoolStopCancelsRunningTasks(t *testing.T) {
	p := NewPool(config.WorkerConfig{WorkerCount: 1}, logger.NewNop())
	p.Start()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.Eventually(t, func() bool {
		return p.Submit(func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			close(cancelled)
		}) == nil
	}, 5*time.Second, time.Millisecond)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Stop(ctx), context.DeadlineExceeded)
	<-cancelled
}
