package repositoryimpl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemloop/tandem/internal/task"
	"github.com/tandemloop/tandem/pkg/cerr"
	"github.com/tandemloop/tandem/pkg/storage"
)

func newTestRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(s)
}

func enqueue(t *testing.T, r *YAMLRepository, id string, deps ...string) {
	t.Helper()
	err := r.Enqueue(context.Background(), &task.Task{
		ID:           id,
		Title:        "task " + id,
		Dependencies: deps,
	})
	require.NoError(t, err)
}

func TestEnqueueDuplicateID(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	enqueue(t, r, "1")
	err := r.Enqueue(ctx, &task.Task{ID: "1", Title: "again"})
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))
}

func TestEnqueueDefaultsStatusPending(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	enqueue(t, r, "1")
	got, err := r.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestTransitionMonotonic(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	enqueue(t, r, "1")

	// pending -> completed is not allowed.
	_, err := r.Transition(ctx, "1", task.StatusCompleted)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	got, err := r.Transition(ctx, "1", task.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status)
	require.NotNil(t, got.StartedAt)

	got, err = r.Transition(ctx, "1", task.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// completed is terminal.
	_, err = r.Transition(ctx, "1", task.StatusInProgress)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
}

func TestTransitionReenterInProgressKeepsStartedAt(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	enqueue(t, r, "1")

	first, err := r.Transition(ctx, "1", task.StatusInProgress)
	require.NoError(t, err)
	started := *first.StartedAt

	// A worker restarting after a crash re-enters in_progress.
	second, err := r.Transition(ctx, "1", task.StatusInProgress)
	require.NoError(t, err)
	assert.WithinDuration(t, started, *second.StartedAt, 0)
}

func TestTransitionNotFound(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.Transition(ctx, "nope", task.StatusInProgress)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestNextEligibleInsertionOrder(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	enqueue(t, r, "a")
	enqueue(t, r, "b")

	got, err := r.NextEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestNextEligibleSkipsUnmetDependencies(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	enqueue(t, r, "a")
	enqueue(t, r, "b", "a")
	enqueue(t, r, "c")

	got, err := r.NextEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = r.Transition(ctx, "a", task.StatusInProgress)
	require.NoError(t, err)
	_, err = r.Transition(ctx, "a", task.StatusCompleted)
	require.NoError(t, err)

	got, err = r.NextEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)
}

func TestNextEligibleBlocked(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	enqueue(t, r, "b", "missing-dep")

	_, err := r.NextEligible(ctx)
	assert.ErrorIs(t, err, task.ErrQueueBlocked)
}

func TestNextEligibleEmptyWhenAllCompleted(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	enqueue(t, r, "1")

	_, err := r.Transition(ctx, "1", task.StatusInProgress)
	require.NoError(t, err)
	_, err = r.Transition(ctx, "1", task.StatusCompleted)
	require.NoError(t, err)

	_, err = r.NextEligible(ctx)
	assert.ErrorIs(t, err, task.ErrQueueEmpty)
}

func TestNextEligiblePrefersInProgress(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	enqueue(t, r, "a")
	enqueue(t, r, "b")

	_, err := r.Transition(ctx, "a", task.StatusInProgress)
	require.NoError(t, err)

	got, err := r.NextEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	enqueue(t, r, "1")
	enqueue(t, r, "2")

	require.NoError(t, r.Delete(ctx, "1"))

	tasks, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "2", tasks[0].ID)

	err = r.Delete(ctx, "1")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
