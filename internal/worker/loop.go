package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tandemloop/tandem/internal/config"
	"github.com/tandemloop/tandem/internal/coord"
	"github.com/tandemloop/tandem/internal/gateway"
	"github.com/tandemloop/tandem/internal/skill"
	"github.com/tandemloop/tandem/internal/task"
	"github.com/tandemloop/tandem/pkg/cerr"
)

// Loop sequentially implements queued tasks by invoking the external agent.
// It is single-threaded: each iteration blocks on the gateway call, which
// may run for minutes. All state lives in the shared store so a restarted
// loop resumes from where the previous process stopped.
type Loop struct {
	cfg    *config.Env
	tasks  task.Repository
	coord  coord.Repository
	skills skill.Repository
	gw     gateway.Gateway
}

func New(cfg *config.Env, tasks task.Repository, crd coord.Repository, skills skill.Repository, gw gateway.Gateway) *Loop {
	return &Loop{
		cfg:    cfg,
		tasks:  tasks,
		coord:  crd,
		skills: skills,
		gw:     gw,
	}
}

// Run executes worker iterations until the queue drains, the iteration
// ceiling is reached, a stop is requested, or a gateway call fails. The
// status marker is updated before every return so observers always see a
// durable terminal state.
func (l *Loop) Run(ctx context.Context) error {
	// A stop requested before this process came up is still a stop.
	marker, err := l.coord.Status(ctx, coord.RoleWorker)
	if err != nil {
		return err
	}
	if marker.Status == coord.StatusStopping {
		return l.finish(ctx, coord.StatusStopped)
	}
	if err := l.coord.SetStatus(ctx, coord.RoleWorker, coord.StatusRunning); err != nil {
		return err
	}
	slog.Info("worker started", "model", l.cfg.WorkerModel, "max_iterations", l.cfg.MaxIterations)

	for {
		if stop, err := l.stopRequested(ctx); err != nil {
			return l.fail(ctx, err)
		} else if stop {
			slog.Info("worker stopping on request")
			return l.finish(ctx, coord.StatusStopped)
		}

		iteration, err := l.coord.Iteration(ctx)
		if err != nil {
			return l.fail(ctx, err)
		}
		if iteration >= l.cfg.MaxIterations {
			slog.Info("iteration ceiling reached", "iteration", iteration)
			return l.finish(ctx, coord.StatusStopped)
		}

		t, err := l.tasks.NextEligible(ctx)
		switch {
		case errors.Is(err, task.ErrQueueEmpty):
			slog.Info("all tasks completed", "iterations", iteration)
			return l.finish(ctx, coord.StatusCompleted)
		case errors.Is(err, task.ErrQueueBlocked):
			slog.Warn("remaining tasks are blocked on unmet dependencies")
			return l.finish(ctx, coord.StatusStopped)
		case err != nil:
			return l.fail(ctx, err)
		}

		if err := l.runIteration(ctx, iteration, t); err != nil {
			return l.fail(ctx, err)
		}

		l.sleep(ctx, l.cfg.IterationDelay)
	}
}

// runIteration performs steps 3-7 of one iteration: claim the task, build
// context, invoke the agent, consume the completion marker, persist results.
func (l *Loop) runIteration(ctx context.Context, iteration int, t *task.Task) error {
	if _, err := l.tasks.Transition(ctx, t.ID, task.StatusInProgress); err != nil {
		return err
	}

	prompt, err := l.buildContext(ctx, t)
	if err != nil {
		return err
	}

	slog.Info("invoking agent", "task_id", t.ID, "iteration", iteration+1)
	res, err := l.gw.Invoke(ctx, gateway.Request{
		Model:   l.cfg.WorkerModel,
		Prompt:  prompt,
		WorkDir: l.cfg.WorkDir,
	})
	if err != nil {
		return err
	}
	// Generation failures are not transient the way rate limits are, so the
	// whole loop stops rather than silently retrying at cost.
	if res.Outcome != gateway.OutcomeSuccess {
		return cerr.NewError(cerr.Internal,
			fmt.Sprintf("agent call failed for task %s", t.ID),
			fmt.Errorf("outcome %s: %s", res.Outcome, res.Reason))
	}

	done, err := l.consumeCompletionMarker(t.ID)
	if err != nil {
		return err
	}
	if done {
		if _, err := l.tasks.Transition(ctx, t.ID, task.StatusCompleted); err != nil {
			return err
		}
		slog.Info("task completed", "task_id", t.ID)
	}

	iteration++
	if err := l.coord.SetIteration(ctx, iteration); err != nil {
		return err
	}
	if err := l.coord.AppendNote(ctx, coord.ProgressNote{
		Iteration: iteration,
		TaskID:    t.ID,
		Summary:   summarize(res.Text),
	}); err != nil {
		return err
	}
	if l.cfg.ReviewCadence > 0 && iteration%l.cfg.ReviewCadence == 0 {
		if err := l.coord.SetReviewSignal(ctx, iteration); err != nil {
			return err
		}
		slog.Info("review signal written", "iteration", iteration)
	}
	return nil
}

func (l *Loop) stopRequested(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return true, nil
	}
	marker, err := l.coord.Status(ctx, coord.RoleWorker)
	if err != nil {
		return false, err
	}
	return marker.Status == coord.StatusStopping, nil
}

func (l *Loop) finish(ctx context.Context, status coord.ProcessStatus) error {
	return l.coord.SetStatus(context.WithoutCancel(ctx), coord.RoleWorker, status)
}

func (l *Loop) fail(ctx context.Context, cause error) error {
	slog.Error("worker loop failed", "error", cause)
	if err := l.coord.SetStatus(context.WithoutCancel(ctx), coord.RoleWorker, coord.StatusFailed); err != nil {
		slog.Error("failed to persist failed status", "error", err)
	}
	return cause
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func summarize(text string) string {
	const maxLen = 200
	for i, r := range text {
		if r == '\n' {
			text = text[:i]
			break
		}
	}
	if len(text) > maxLen {
		return text[:maxLen]
	}
	return text
}
