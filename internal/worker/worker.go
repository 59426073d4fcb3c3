package worker

import (
	"context"
	"sync"
	"time"

	"github.com/amankumarsingh77/backdrop/internal/config"
	"github.com/amankumarsingh77/backdrop/pkg/logger"
	"github.com/amankumarsingh77/backdrop/pkg/utils"
)

// Pool runs tasks on a fixed number of goroutines fed by a bounded queue.
// A worker only picks up its next task once CPU usage is under the
// configured limit.
type Pool struct {
	logger logger.Logger
	cfg    config.WorkerConfig
	load   loadFunc

	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewPool(cfg config.WorkerConfig, logger logger.Logger) *Pool {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger: logger,
		cfg:    cfg,
		load:   utils.CheckCPUUsage,
		tasks:  make(chan Task, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Pool) Start() {
	p.logger.Infof("Starting %d workers", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues task without blocking. It fails with ErrQueueFull when every
// queue slot is taken.
func (p *Pool) Submit(task func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new tasks, lets queued ones finish and waits for the workers.
// When ctx expires first, running tasks are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.admit(id)
		p.run(id, task)
	}
}

// admit blocks until CPU usage drops under the limit or the pool is
// cancelled.
func (p *Pool) admit(id int) {
	for {
		ok, usage := p.load(p.cfg.MaxCPUUsage)
		if ok {
			return
		}
		p.logger.Infof("Worker %d - CPU usage is high: %.1f%%, waiting", id, usage)
		select {
		case <-time.After(p.cfg.CheckInterval):
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("Worker %d - task panicked: %v", id, r)
		}
	}()
	task(p.ctx)
}
