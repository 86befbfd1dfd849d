package manager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tandemloop/tandem/internal/config"
	"github.com/tandemloop/tandem/internal/coord"
	"github.com/tandemloop/tandem/internal/gateway"
	"github.com/tandemloop/tandem/internal/review"
	"github.com/tandemloop/tandem/internal/skill"
	"github.com/tandemloop/tandem/pkg/cerr"
)

// Loop asynchronously reviews worker output. It polls the review signal,
// gates each review behind the persisted watermark so no iteration is
// reviewed twice, and feeds skills and directives back to the worker.
type Loop struct {
	cfg     *config.Env
	coord   coord.Repository
	skills  skill.Repository
	reviews review.Repository
	gw      gateway.Gateway

	// sleep is injectable so backoff behavior is testable.
	sleep func(ctx context.Context, d time.Duration)
}

func New(cfg *config.Env, crd coord.Repository, skills skill.Repository, reviews review.Repository, gw gateway.Gateway) *Loop {
	return &Loop{
		cfg:     cfg,
		coord:   crd,
		skills:  skills,
		reviews: reviews,
		gw:      gw,
		sleep:   sleepCtx,
	}
}

// Run polls until the worker reaches a terminal state, then performs one
// final review pass and emits the aggregate report.
func (l *Loop) Run(ctx context.Context) error {
	// A stop requested before this process came up is still a stop.
	marker, err := l.coord.Status(ctx, coord.RoleManager)
	if err != nil {
		return err
	}
	if marker.Status == coord.StatusStopping {
		return l.finish(ctx, coord.StatusStopped)
	}
	if err := l.coord.SetStatus(ctx, coord.RoleManager, coord.StatusRunning); err != nil {
		return err
	}
	slog.Info("manager started", "model", l.cfg.ManagerModel, "review_interval", l.cfg.ReviewInterval)

	for {
		if stop, err := l.stopRequested(ctx); err != nil {
			return l.fail(ctx, err)
		} else if stop {
			slog.Info("manager stopping on request")
			return l.finish(ctx, coord.StatusStopped)
		}

		if err := l.pollOnce(ctx); err != nil {
			if cerr.IsCode(err, cerr.ResourceExhausted) {
				// Signal left untouched; the next cycle retries from scratch.
				slog.Warn("review rate-limited, will retry next cycle", "error", err)
			} else {
				return l.fail(ctx, err)
			}
		}

		workerDone, err := l.workerFinished(ctx)
		if err != nil {
			return l.fail(ctx, err)
		}
		if workerDone {
			slog.Info("worker finished, running final review pass")
			if err := l.pollOnce(ctx); err != nil && !cerr.IsCode(err, cerr.ResourceExhausted) {
				return l.fail(ctx, err)
			}
			if err := l.emitReport(ctx); err != nil {
				return l.fail(ctx, err)
			}
			return l.finish(ctx, coord.StatusStopped)
		}

		l.sleep(ctx, l.cfg.ReviewInterval)
	}
}

// pollOnce runs one polling cycle: skip when the signaled iteration does not
// exceed the watermark, otherwise review it.
func (l *Loop) pollOnce(ctx context.Context) error {
	sig, ok, err := l.coord.ReviewSignal(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	wm, err := l.coord.Watermark(ctx)
	if err != nil {
		return err
	}
	if sig <= wm {
		return nil
	}
	return l.reviewIteration(ctx, sig)
}

// reviewIteration invokes the gateway for one review, applying the retry
// protocol on rate limits: bounded attempts, doubling wait, capped ceiling.
// Exhaustion returns ResourceExhausted and leaves the review signal in place.
// Any other failure clears the signal so the loop cannot wedge on a
// permanently failing iteration.
func (l *Loop) reviewIteration(ctx context.Context, iteration int) error {
	prompt, taskID, err := l.buildReviewContext(ctx, iteration)
	if err != nil {
		return err
	}

	wait := l.cfg.RetryBaseWait
	for attempt := 1; attempt <= l.cfg.RetryMaxAttempts; attempt++ {
		res, invokeErr := l.gw.Invoke(ctx, gateway.Request{
			Model:   l.cfg.ManagerModel,
			Prompt:  prompt,
			WorkDir: l.cfg.WorkDir,
		})
		if invokeErr != nil {
			slog.Error("review failed, abandoning cycle", "iteration", iteration, "error", invokeErr)
			return l.coord.ClearReviewSignal(ctx)
		}

		switch res.Outcome {
		case gateway.OutcomeSuccess:
			return l.applyReview(ctx, iteration, taskID, res.Text)
		case gateway.OutcomeRateLimited:
			if attempt == l.cfg.RetryMaxAttempts {
				return cerr.NewError(cerr.ResourceExhausted,
					fmt.Sprintf("review of iteration %d rate-limited after %d attempts", iteration, attempt),
					nil)
			}
			slog.Warn("agent rate-limited, backing off",
				"iteration", iteration, "attempt", attempt, "wait", wait)
			l.sleep(ctx, wait)
			wait *= 2
			if wait > l.cfg.RetryMaxWait {
				wait = l.cfg.RetryMaxWait
			}
		default:
			// Liveness over completeness: a non-retryable failure abandons
			// this iteration's review rather than wedging the loop.
			slog.Error("review failed, abandoning cycle",
				"iteration", iteration, "reason", res.Reason)
			return l.coord.ClearReviewSignal(ctx)
		}
	}
	return nil
}

// applyReview persists the review record and any skills or directive the
// reviewer emitted, then advances the watermark and clears the signal.
func (l *Loop) applyReview(ctx context.Context, iteration int, taskID, output string) error {
	parsed := parseReviewOutput(output)

	rv := &review.Review{
		Iteration: iteration,
		TaskID:    taskID,
		Verdict:   parsed.Verdict,
		Score:     parsed.Score,
		Findings:  parsed.Findings,
		CreatedAt: time.Now(),
	}
	if err := l.reviews.Create(ctx, rv); err != nil {
		return err
	}
	for _, ps := range parsed.Skills {
		if err := l.skills.Upsert(ctx, &skill.Skill{
			Name:            ps.Name,
			Content:         ps.Content,
			SourceIteration: iteration,
		}); err != nil {
			return err
		}
	}
	if parsed.Directive != "" {
		if err := l.coord.SetDirective(ctx, parsed.Directive); err != nil {
			return err
		}
	}
	if err := l.coord.SetWatermark(ctx, iteration); err != nil {
		return err
	}
	if err := l.coord.ClearReviewSignal(ctx); err != nil {
		return err
	}
	slog.Info("review completed",
		"iteration", iteration, "verdict", rv.Verdict, "score", rv.Score, "skills", len(parsed.Skills))
	return nil
}

// buildReviewContext assembles the compact review prompt: the latest
// progress note for the iteration, the skill count, and the task id.
func (l *Loop) buildReviewContext(ctx context.Context, iteration int) (prompt, taskID string, err error) {
	notes, err := l.coord.Notes(ctx)
	if err != nil {
		return "", "", err
	}
	summary := ""
	for _, n := range notes {
		if n.Iteration == iteration {
			summary = n.Summary
			taskID = n.TaskID
		}
	}
	names, err := l.skills.Names(ctx)
	if err != nil {
		return "", "", err
	}
	return renderReviewPrompt(iteration, taskID, summary, len(names)), taskID, nil
}

func (l *Loop) workerFinished(ctx context.Context) (bool, error) {
	marker, err := l.coord.Status(ctx, coord.RoleWorker)
	if err != nil {
		return false, err
	}
	return marker.Status == coord.StatusStopping || marker.Status.Terminal(), nil
}

func (l *Loop) stopRequested(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return true, nil
	}
	marker, err := l.coord.Status(ctx, coord.RoleManager)
	if err != nil {
		return false, err
	}
	return marker.Status == coord.StatusStopping, nil
}

func (l *Loop) finish(ctx context.Context, status coord.ProcessStatus) error {
	return l.coord.SetStatus(context.WithoutCancel(ctx), coord.RoleManager, status)
}

func (l *Loop) fail(ctx context.Context, cause error) error {
	slog.Error("manager loop failed", "error", cause)
	if err := l.coord.SetStatus(context.WithoutCancel(ctx), coord.RoleManager, coord.StatusFailed); err != nil {
		slog.Error("failed to persist failed status", "error", err)
	}
	return cause
}

func sleepCtx(ctx context.Context, d time.Duration) {
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
