// Package work runs provider jobs off the caller's goroutine.
//
// A Pool is a bounded set of workers fed from a priority queue. Executors
// wrap the two ways a provider can run a job: Direct runs it inline and
// Scheduled hands it to a Pool and waits. Both see the caller's context
// and neither decides whether a result is still current; that is the
// ranking's sort sequence.
//
// Logging: job state changes are logged at debug level via internal/logging.
package work

import (
	"context"
	"fmt"
	"time"
)

// Type categorizes jobs. It selects the default priority.
type Type string

const (
	TypeSort    Type = "sort"    // Ranking sort
	TypeSummary Type = "summary" // Group/column aggregation
	TypeView    Type = "view"    // Row materialization
)

// Priorities. Higher runs first.
const (
	PriorityLow    = -10
	PriorityNormal = 0
	PriorityHigh   = 10
)

// DefaultPriority is the queue priority for a job type. Views back what is
// on screen and jump the queue; summaries can wait for sorts.
func DefaultPriority(t Type) int {
	switch t {
	case TypeView:
		return PriorityHigh
	case TypeSummary:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled" // caller gave up before a worker picked it up
)

// Job is one queued unit of provider work. Fields other than Type, Desc
// and Priority are owned by the pool; read them after Done is closed.
type Job struct {
	ID       string
	Type     Type
	Desc     string // "sort Ranking 3"
	Priority int
	Status   Status

	Submitted time.Time
	Started   time.Time
	Finished  time.Time
	Err       error

	ctx       context.Context
	fn        func(ctx context.Context) error
	done      chan struct{}
	heapIndex int   // position in the pending heap, -1 once popped
	seq       int64 // submission order, breaks priority ties
}

// Done is closed once the job has finished, failed or been cancelled.
func (j *Job) Done() <-chan struct{} { return j.done }

// Queued returns how long the job waited for a worker.
func (j *Job) Queued() time.Duration {
	if j.Started.IsZero() {
		return 0
	}
	return j.Started.Sub(j.Submitted)
}

// Duration returns how long the job ran.
func (j *Job) Duration() time.Duration {
	if j.Started.IsZero() || j.Finished.IsZero() {
		return 0
	}
	return j.Finished.Sub(j.Started)
}

// Stats tracks pool counters.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Cancelled int64
	Active    int
	Pending   int
	Workers   int
}

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("workers %d/%d  pending %d  done %d  failed %d  cancelled %d",
		s.Active, s.Workers, s.Pending, s.Completed, s.Failed, s.Cancelled)
}
