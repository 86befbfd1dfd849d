package task

import (
	"context"
	"errors"
)

// ErrQueueEmpty is returned by NextEligible when no pending or in_progress
// tasks remain. This is the worker's terminal condition.
var ErrQueueEmpty = errors.New("queue empty")

// ErrQueueBlocked is returned when open tasks remain but every one of them
// waits on an incomplete dependency. Distinct from ErrQueueEmpty so the
// worker can report the queue as wedged rather than done.
var ErrQueueBlocked = errors.New("queue blocked on dependencies")

// Repository owns the queue document. The worker is the only transition
// writer; operator-facing edits go through Update/Delete.
type Repository interface {
	Enqueue(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context) ([]*Task, error)
	// NextEligible returns the first open task in insertion order whose
	// dependencies are all completed.
	NextEligible(ctx context.Context) (*Task, error)
	// Transition moves a task along the monotonic status order, stamping
	// started_at (idempotently) and completed_at.
	Transition(ctx context.Context, id string, next Status) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
}
