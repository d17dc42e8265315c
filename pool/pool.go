package pool

import (
	"context"
	"sync"
)

// WorkerPool bounds the number of concurrently running jobs. Submissions
// beyond capacity queue on the semaphore instead of spawning extra workers.
type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func New(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &WorkerPool{
		sem: make(chan struct{}, maxWorkers),
	}
}

// Submit schedules the job and returns immediately. The job runs once a
// worker slot frees up, or never if ctx is cancelled first.
func (p *WorkerPool) Submit(ctx context.Context, job func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
			job(ctx)
		case <-ctx.Done():
		}
	}()
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
