package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a unit of background work. The pool cancels its context on
// shutdown.
type Job func(ctx context.Context)

// Pool runs background jobs with a bounded number of workers. Jobs
// submitted under the same key run one after another in submission
// order; jobs under different keys run concurrently.
type Pool struct {
	logger *slog.Logger
	sem    chan struct{}

	mu     sync.Mutex
	queues map[string][]Job
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger: slog.Default(),
		sem:    make(chan struct{}, workers),
		queues: make(map[string][]Job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit enqueues job under key. Returns false after Shutdown.
func (p *Pool) Submit(key string, job Job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	queue, active := p.queues[key]
	p.queues[key] = append(queue, job)
	if active {
		// a runner already owns this key and will drain the queue
		p.mu.Unlock()
		return true
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go p.drain(key)
	return true
}

func (p *Pool) drain(key string) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		queue := p.queues[key]
		if len(queue) == 0 {
			delete(p.queues, key)
			p.mu.Unlock()
			return
		}
		job := queue[0]
		p.queues[key] = queue[1:]
		p.mu.Unlock()

		select {
		case p.sem <- struct{}{}:
		case <-p.ctx.Done():
			return
		}
		p.run(key, job)
		<-p.sem
	}
}

func (p *Pool) run(key string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "key", key, "panic", r)
		}
	}()
	job(p.ctx)
}

// Shutdown stops accepting jobs, cancels running ones and waits up to
// timeout for the workers to stop.
func (p *Pool) Shutdown(timeout time.Duration) {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(timeout):
		p.logger.Warn("timeout waiting for workers to stop")
	}
}
