package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names what a job computes.
type Kind string

// Job kinds.
const (
	KindCrossSection Kind = "cross_section"
	KindLeadLag      Kind = "lead_lag"
	KindSuggest      Kind = "suggest"
)

// Status is the lifecycle state of a job.
type Status string

// Job statuses. Done, Failed and Cancelled are final.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Final reports whether no further transition can happen.
func (s Status) Final() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Task is the work a job performs. It must return promptly once ctx is done.
type Task func(ctx context.Context) (any, error)

// Job is one asynchronous computation with its own cancellable context.
// It outlives the request that submitted it.
type Job struct {
	ID   string
	Kind Kind
	task Task

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	status   Status
	result   any
	err      error
	created  time.Time
	started  time.Time
	finished time.Time
}

// Snapshot is a point-in-time copy of a job's state.
type Snapshot struct {
	ID       string
	Kind     Kind
	Status   Status
	Result   any
	Err      error
	Created  time.Time
	Started  time.Time
	Finished time.Time
}

// NewJob creates a pending job.
func NewJob(kind Kind, task Task) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	return &Job{
		ID:      uuid.NewString(),
		Kind:    kind,
		task:    task,
		ctx:     ctx,
		cancel:  cancel,
		status:  StatusPending,
		created: time.Now(),
	}
}

// Context is cancelled when the job is cancelled.
func (j *Job) Context() context.Context { return j.ctx }

// Cancel stops the job. A pending job becomes cancelled at once; a running
// job becomes cancelled when its task returns. Returns false if the job
// had already finished.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Final() {
		return false
	}

	// Signal the task, then settle a job that never started
	j.cancel()
	if j.status == StatusPending {
		j.finishLocked(nil, context.Canceled)
	}
	return true
}

// Start moves a pending job to running. It returns false for a job that
// was cancelled while queued.
func (j *Job) Start() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return false
	}
	j.status = StatusRunning
	j.started = time.Now()
	return true
}

// Run executes the task under ctx, which should derive from Context, and
// records the outcome.
func (j *Job) Run(ctx context.Context) Status {
	result, err := j.invoke(ctx)

	// Record the outcome under the lock
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finishLocked(result, err)
	return j.status
}

// invoke runs the task, turning a panic into an ErrTaskPanic failure so
// one bad job cannot take its worker down.
func (j *Job) invoke(ctx context.Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return j.task(ctx)
}

func (j *Job) finishLocked(result any, err error) {
	switch {
	case j.ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)):
		j.status = StatusCancelled
		j.err = context.Canceled
	case err != nil:
		j.status = StatusFailed
		j.err = err
	default:
		j.status = StatusDone
		j.result = result
	}
	j.finished = time.Now()
	j.cancel()
}

// Snapshot returns the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		ID:       j.ID,
		Kind:     j.Kind,
		Status:   j.status,
		Result:   j.result,
		Err:      j.err,
		Created:  j.created,
		Started:  j.started,
		Finished: j.finished,
	}
}
