package work

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abelbrown/lineup/internal/logging"
)

// ErrStopped is returned for jobs submitted to or drained from a stopped pool.
var ErrStopped = errors.New("work pool stopped")

// Pool runs jobs on at most `workers` goroutines at a time.
type Pool struct {
	mu      sync.Mutex
	workers int
	pending jobQueue
	active  int
	wake    chan struct{}

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	nextID    atomic.Int64

	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a pool. If workers <= 0, uses runtime.NumCPU().
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		workers: workers,
		wake:    make(chan struct{}, 1),
	}
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int { return p.workers }

// Start launches the dispatcher. Calling it again is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.dispatchLoop()
	logging.Info("Work pool started", "workers", p.workers)
}

// Stop cancels running jobs, fails queued ones with ErrStopped and waits
// for the workers to exit. Calling it again is a no-op.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	var drained []*Job
	for p.pending.Len() > 0 {
		drained = append(drained, heap.Pop(&p.pending).(*Job))
	}
	p.mu.Unlock()

	for _, job := range drained {
		p.finish(job, StatusCancelled, ErrStopped)
	}
	p.cancel()
	p.wg.Wait()
	logging.Info("Work pool stopped", "stats", p.Stats().String())
}

// Done is closed when the pool is stopped or its parent context ends.
// Before Start it returns nil, which blocks forever in a select.
func (p *Pool) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	return p.ctx.Done()
}

// Submit queues fn under ctx. A job whose ctx has ended by the time a
// worker picks it up is cancelled without running.
func (p *Pool) Submit(ctx context.Context, typ Type, desc string, priority int, fn func(ctx context.Context) error) *Job {
	id := p.nextID.Add(1)
	job := &Job{
		ID:        fmt.Sprintf("w%d", id),
		Type:      typ,
		Desc:      desc,
		Priority:  priority,
		Status:    StatusPending,
		Submitted: time.Now(),
		ctx:       ctx,
		fn:        fn,
		done:      make(chan struct{}),
		seq:       id,
	}
	p.submitted.Add(1)

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.finish(job, StatusCancelled, ErrStopped)
		return job
	}
	heap.Push(&p.pending, job)
	p.mu.Unlock()

	logging.Debug("Job queued", "id", job.ID, "type", typ, "desc", desc, "priority", priority)
	p.signal()
	return job
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) dispatchLoop() {
	defer p.wg.Done()
	for {
		p.dispatch()
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}
	}
}

// dispatch starts pending jobs while workers are free.
func (p *Pool) dispatch() {
	p.mu.Lock()
	var started []*Job
	for p.pending.Len() > 0 && p.active < p.workers {
		job := heap.Pop(&p.pending).(*Job)
		if job.ctx.Err() != nil {
			// finish outside the lock
			started = append(started, job)
			continue
		}
		job.Status = StatusActive
		job.Started = time.Now()
		p.active++
		started = append(started, job)
	}
	p.mu.Unlock()

	for _, job := range started {
		if job.Status != StatusActive {
			p.finish(job, StatusCancelled, job.ctx.Err())
			continue
		}
		p.wg.Add(1)
		go p.execute(job)
	}
}

func (p *Pool) execute(job *Job) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Job panicked", "id", job.ID, "panic", r)
			p.release()
			p.finish(job, StatusFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	// The job sees its caller's context, also cancelled when the pool stops.
	ctx, cancel := context.WithCancel(job.ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	err := job.fn(ctx)
	p.release()
	if err != nil {
		p.finish(job, StatusFailed, err)
		return
	}
	p.finish(job, StatusComplete, nil)
}

func (p *Pool) release() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	p.signal()
}

func (p *Pool) finish(job *Job, status Status, err error) {
	job.Status = status
	job.Err = err
	job.Finished = time.Now()
	switch status {
	case StatusComplete:
		p.completed.Add(1)
		logging.Debug("Job completed", "id", job.ID, "type", job.Type, "queued", job.Queued(), "duration", job.Duration())
	case StatusFailed:
		p.failed.Add(1)
		logging.Debug("Job failed", "id", job.ID, "type", job.Type, "error", err)
	case StatusCancelled:
		p.cancelled.Add(1)
		logging.Debug("Job cancelled", "id", job.ID, "type", job.Type, "error", err)
	}
	close(job.done)
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Cancelled: p.cancelled.Load(),
		Active:    p.active,
		Pending:   p.pending.Len(),
		Workers:   p.workers,
	}
}
