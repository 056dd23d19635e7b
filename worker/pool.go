package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"precinct-nav/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrPoolClosed = errors.New("worker pool is closed")

type job struct {
	id  string
	run func()
}

// Pool runs route searches off the request path on a fixed set of workers.
type Pool struct {
	workers int
	queue   chan job
	eg      *errgroup.Group
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool; Start launches the workers.
func NewPool(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		workers: workers,
		queue:   make(chan job, queueSize),
		logger:  logger.With(zap.String("component", "worker_pool")),
	}
}

// Start launches the workers. They exit once Stop closes the queue and it
// drains.
func (p *Pool) Start() {
	p.eg = new(errgroup.Group)
	for i := 0; i < p.workers; i++ {
		workerID := i
		p.eg.Go(func() error {
			p.work(workerID)
			return nil
		})
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workers), zap.Int("queue", cap(p.queue)))
}

func (p *Pool) work(workerID int) {
	for j := range p.queue {
		p.setDepth(-1)
		p.runJob(workerID, j)
	}
}

func (p *Pool) runJob(workerID int, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked",
				zap.Int("worker", workerID),
				zap.String("job", j.id),
				zap.Any("panic", r))
		}
	}()
	j.run()
}

// Submit queues fn. It blocks while the queue is full, until ctx is done.
func (p *Pool) Submit(ctx context.Context, id string, fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- job{id: id, run: fn}:
		p.setDepth(1)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit %s: %w", id, ctx.Err())
	}
}

func (p *Pool) setDepth(delta int) {
	metrics.WorkerQueueDepth.Add(float64(delta))
}

// Stop refuses new work, lets queued jobs finish and waits for the workers.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	if p.eg == nil {
		return nil
	}
	err := p.eg.Wait()
	p.logger.Info("worker pool stopped")
	return err
}
