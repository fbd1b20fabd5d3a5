package work

import (
	"context"
)

// Executor runs a job on behalf of a provider.
type Executor interface {
	// Run executes fn and returns its error. It returns ctx.Err() if ctx
	// ends first; fn may still be running then and its outcome is dropped.
	Run(ctx context.Context, typ Type, desc string, fn func(ctx context.Context) error) error
	Name() string
}

// Direct runs jobs inline on the calling goroutine.
type Direct struct{}

func (Direct) Name() string { return "direct" }

func (Direct) Run(ctx context.Context, _ Type, _ string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// Scheduled hands jobs to a Pool and waits for them. Jobs are queued at
// DefaultPriority for their type.
type Scheduled struct {
	Pool *Pool
}

// NewScheduled wraps a pool. The pool must be started for jobs to run.
func NewScheduled(p *Pool) *Scheduled {
	return &Scheduled{Pool: p}
}

func (s *Scheduled) Name() string { return "scheduled" }

func (s *Scheduled) Run(ctx context.Context, typ Type, desc string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job := s.Pool.Submit(ctx, typ, desc, DefaultPriority(typ), fn)

	select {
	case <-job.Done():
		return job.Err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.Pool.Done():
		return ErrStopped
	}
}
