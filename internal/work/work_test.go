package work

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startPool(t *testing.T, workers int) *Pool {
	t.Helper()
	p := NewPool(workers)
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p
}

func waitJob(t *testing.T, j *Job) {
	t.Helper()
	select {
	case <-j.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("job %s did not finish", j.ID)
	}
}

func TestJobQueueOrder(t *testing.T) {
	var q jobQueue
	push := func(id string, prio int, seq int64) {
		heap.Push(&q, &Job{ID: id, Priority: prio, seq: seq})
	}
	push("low", PriorityLow, 1)
	push("normal-1", PriorityNormal, 2)
	push("high", PriorityHigh, 3)
	push("normal-2", PriorityNormal, 4)

	want := []string{"high", "normal-1", "normal-2", "low"}
	for i, id := range want {
		got := heap.Pop(&q).(*Job)
		if got.ID != id {
			t.Errorf("pop %d = %s, want %s", i, got.ID, id)
		}
		if got.heapIndex != -1 {
			t.Errorf("popped job %s keeps heap index %d", got.ID, got.heapIndex)
		}
	}
}

func TestDefaultPriority(t *testing.T) {
	if !(DefaultPriority(TypeView) > DefaultPriority(TypeSort) && DefaultPriority(TypeSort) > DefaultPriority(TypeSummary)) {
		t.Error("want view > sort > summary")
	}
}

func TestPoolRunsJobs(t *testing.T) {
	p := startPool(t, 2)

	var mu sync.Mutex
	ran := 0
	jobs := make([]*Job, 5)
	for i := range jobs {
		jobs[i] = p.Submit(context.Background(), TypeSort, "count", PriorityNormal, func(context.Context) error {
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		})
	}
	for _, j := range jobs {
		waitJob(t, j)
		if j.Status != StatusComplete || j.Err != nil {
			t.Errorf("job %s: status %s err %v", j.ID, j.Status, j.Err)
		}
		if j.Started.Before(j.Submitted) || j.Finished.Before(j.Started) {
			t.Errorf("job %s timestamps out of order", j.ID)
		}
	}
	if ran != 5 {
		t.Errorf("ran %d jobs, want 5", ran)
	}
	if s := p.Stats(); s.Submitted != 5 || s.Completed != 5 || s.Active != 0 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestPoolFailedAndPanickingJobs(t *testing.T) {
	p := startPool(t, 1)
	boom := errors.New("boom")

	failed := p.Submit(context.Background(), TypeSort, "fail", PriorityNormal, func(context.Context) error { return boom })
	waitJob(t, failed)
	if failed.Status != StatusFailed || !errors.Is(failed.Err, boom) {
		t.Errorf("failed job: %s %v", failed.Status, failed.Err)
	}

	panicked := p.Submit(context.Background(), TypeSort, "panic", PriorityNormal, func(context.Context) error { panic("oops") })
	waitJob(t, panicked)
	if panicked.Status != StatusFailed || panicked.Err == nil {
		t.Errorf("panicking job: %s %v", panicked.Status, panicked.Err)
	}

	// the worker slot is released after a panic
	after := p.Submit(context.Background(), TypeSort, "after", PriorityNormal, func(context.Context) error { return nil })
	waitJob(t, after)
	if after.Status != StatusComplete {
		t.Errorf("job after panic: %s", after.Status)
	}
	if s := p.Stats(); s.Failed != 2 || s.Completed != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestPoolPriorityWhenSaturated(t *testing.T) {
	p := startPool(t, 1)

	release := make(chan struct{})
	blocker := p.Submit(context.Background(), TypeSort, "blocker", PriorityNormal, func(context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond) // let the blocker occupy the only worker

	var mu sync.Mutex
	var order []Type
	record := func(typ Type) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, typ)
			mu.Unlock()
			return nil
		}
	}
	jobs := []*Job{
		p.Submit(context.Background(), TypeSummary, "summary", DefaultPriority(TypeSummary), record(TypeSummary)),
		p.Submit(context.Background(), TypeSort, "sort", DefaultPriority(TypeSort), record(TypeSort)),
		p.Submit(context.Background(), TypeView, "view", DefaultPriority(TypeView), record(TypeView)),
	}
	close(release)
	waitJob(t, blocker)
	for _, j := range jobs {
		waitJob(t, j)
	}

	want := []Type{TypeView, TypeSort, TypeSummary}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("run order = %v, want %v", order, want)
		}
	}
}

func TestPoolSkipsCancelledJobs(t *testing.T) {
	p := startPool(t, 1)

	release := make(chan struct{})
	blocker := p.Submit(context.Background(), TypeSort, "blocker", PriorityNormal, func(context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	skipped := p.Submit(ctx, TypeSort, "stale", PriorityNormal, func(context.Context) error {
		t.Error("cancelled job should not run")
		return nil
	})
	cancel()
	close(release)

	waitJob(t, blocker)
	waitJob(t, skipped)
	if skipped.Status != StatusCancelled || !errors.Is(skipped.Err, context.Canceled) {
		t.Errorf("skipped job: %s %v", skipped.Status, skipped.Err)
	}
	if s := p.Stats(); s.Cancelled != 1 {
		t.Errorf("Cancelled = %d, want 1", s.Cancelled)
	}
}

func TestStopCancelsRunningAndQueued(t *testing.T) {
	p := NewPool(1)
	p.Start(context.Background())

	running := p.Submit(context.Background(), TypeSort, "running", PriorityNormal, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	time.Sleep(20 * time.Millisecond)
	queued := p.Submit(context.Background(), TypeSort, "queued", PriorityNormal, func(context.Context) error {
		t.Error("queued job should not run after Stop")
		return nil
	})

	p.Stop()
	waitJob(t, running)
	waitJob(t, queued)
	if !errors.Is(running.Err, context.Canceled) {
		t.Errorf("running job err = %v, want context.Canceled", running.Err)
	}
	if queued.Status != StatusCancelled || !errors.Is(queued.Err, ErrStopped) {
		t.Errorf("queued job: %s %v", queued.Status, queued.Err)
	}

	late := p.Submit(context.Background(), TypeSort, "late", PriorityNormal, func(context.Context) error { return nil })
	waitJob(t, late)
	if !errors.Is(late.Err, ErrStopped) {
		t.Errorf("job submitted after Stop: %v", late.Err)
	}
}

func TestDoubleStartStop(t *testing.T) {
	p := NewPool(2)
	p.Stop() // before Start: no-op
	p.Start(context.Background())
	p.Start(context.Background())
	p.Stop()
	p.Stop()
	if p.Workers() != 2 {
		t.Errorf("Workers = %d", p.Workers())
	}
}

func TestStatsString(t *testing.T) {
	s := Stats{Workers: 4, Active: 1, Pending: 2, Completed: 3}
	if got := s.String(); got != "workers 1/4  pending 2  done 3  failed 0  cancelled 0" {
		t.Errorf("String = %q", got)
	}
}
