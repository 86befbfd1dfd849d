package supervisor

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemloop/tandem/internal/config"
	"github.com/tandemloop/tandem/internal/coord"
	coordimpl "github.com/tandemloop/tandem/internal/coord/repositoryimpl"
	reviewimpl "github.com/tandemloop/tandem/internal/review/repositoryimpl"
	skillimpl "github.com/tandemloop/tandem/internal/skill/repositoryimpl"
	"github.com/tandemloop/tandem/internal/task"
	taskimpl "github.com/tandemloop/tandem/internal/task/repositoryimpl"
	"github.com/tandemloop/tandem/pkg/cerr"
	"github.com/tandemloop/tandem/pkg/storage"
)

type fixture struct {
	sup     *Supervisor
	tasks   task.Repository
	coord   coord.Repository
	store   *storage.LocalStorage
	spawned []coord.Role
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Env{}
	cfg.WorkDir = t.TempDir()
	cfg.StopGracePeriod = 2 * time.Second

	f := &fixture{
		store: store,
		tasks: taskimpl.NewYAMLRepository(store),
		coord: coordimpl.NewYAMLRepository(store),
	}
	f.sup = New(cfg, store, f.tasks, f.coord, skillimpl.NewYAMLRepository(store), reviewimpl.NewYAMLRepository(store))
	f.sup.stagger = 0
	f.sup.spawn = func(role coord.Role) (int, error) {
		f.spawned = append(f.spawned, role)
		return os.Getpid(), nil
	}
	return f
}

func (f *fixture) enqueue(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.tasks.Enqueue(context.Background(), &task.Task{ID: id, Title: "task " + id}))
}

// deadPID returns a pid that existed a moment ago but no longer does.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())
	return pid
}

func TestStartRejectsEmptyQueue(t *testing.T) {
	f := newFixture(t)

	err := f.sup.Start(context.Background())
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
	assert.Empty(t, f.spawned)
}

func TestStartRejectsWhenAlreadyRunning(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enqueue(t, "1")
	// The test process itself is certainly alive.
	require.NoError(t, f.coord.SetLiveness(ctx, coord.RoleWorker, os.Getpid()))

	err := f.sup.Start(ctx)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
	assert.Empty(t, f.spawned)
}

func TestStartClearsStaleLivenessAndLaunchesBoth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enqueue(t, "1")
	require.NoError(t, f.coord.SetLiveness(ctx, coord.RoleWorker, deadPID(t)))

	require.NoError(t, f.sup.Start(ctx))

	assert.Equal(t, []coord.Role{coord.RoleWorker, coord.RoleManager}, f.spawned)
	for _, role := range []coord.Role{coord.RoleWorker, coord.RoleManager} {
		rec, err := f.coord.Liveness(ctx, role)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, os.Getpid(), rec.PID)

		marker, err := f.coord.Status(ctx, role)
		require.NoError(t, err)
		assert.Equal(t, coord.StatusRunning, marker.Status)
	}
}

func TestStartHonorsNoManager(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enqueue(t, "1")
	f.sup.cfg.NoManager = true

	require.NoError(t, f.sup.Start(ctx))

	assert.Equal(t, []coord.Role{coord.RoleWorker}, f.spawned)
	rec, err := f.coord.Liveness(ctx, coord.RoleManager)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStatusReportsStaleRunningAsStopped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.coord.SetStatus(ctx, coord.RoleWorker, coord.StatusRunning))
	require.NoError(t, f.coord.SetLiveness(ctx, coord.RoleWorker, deadPID(t)))

	rp, err := f.sup.Status(ctx)
	require.NoError(t, err)

	require.Len(t, rp.Roles, 2)
	assert.Equal(t, coord.RoleWorker, rp.Roles[0].Role)
	assert.Equal(t, coord.StatusStopped, rp.Roles[0].Status)
	assert.False(t, rp.Roles[0].Alive)
}

func TestStatusCountsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enqueue(t, "1")
	f.enqueue(t, "2")
	_, err := f.tasks.Transition(ctx, "1", task.StatusInProgress)
	require.NoError(t, err)
	require.NoError(t, f.coord.SetIteration(ctx, 4))
	require.NoError(t, f.coord.SetWatermark(ctx, 3))
	require.NoError(t, f.coord.SetReviewSignal(ctx, 4))

	rp, err := f.sup.Status(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, rp.TaskCounts[task.StatusPending])
	assert.Equal(t, 1, rp.TaskCounts[task.StatusInProgress])
	assert.Equal(t, 4, rp.Iteration)
	assert.Equal(t, 3, rp.Watermark)
	require.NotNil(t, rp.ReviewSignal)
	assert.Equal(t, 4, *rp.ReviewSignal)
}

func TestStopIsIdempotentWhenNothingRuns(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sup.Stop(context.Background()))
}

func TestStopClearsStaleLiveness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.coord.SetLiveness(ctx, coord.RoleWorker, deadPID(t)))

	require.NoError(t, f.sup.Stop(ctx))

	rec, err := f.coord.Liveness(ctx, coord.RoleWorker)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCleanWipesAllState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enqueue(t, "1")
	require.NoError(t, f.coord.SetIteration(ctx, 7))

	require.NoError(t, f.sup.Clean(ctx))

	tasks, err := f.tasks.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	iter, err := f.coord.Iteration(ctx)
	require.NoError(t, err)
	assert.Zero(t, iter)
}
