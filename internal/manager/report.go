package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/tandemloop/tandem/internal/review"
)

// emitReport aggregates every persisted review and the learned skill names
// into the final report document.
func (l *Loop) emitReport(ctx context.Context) error {
	reviews, err := l.reviews.List(ctx)
	if err != nil {
		return err
	}
	names, err := l.skills.Names(ctx)
	if err != nil {
		return err
	}

	rp := &review.Report{
		GeneratedAt: time.Now(),
		SkillNames:  names,
	}
	for _, rv := range reviews {
		rp.Reviews = append(rp.Reviews, review.ReportEntry{
			Iteration: rv.Iteration,
			Verdict:   rv.Verdict,
			Score:     rv.Score,
		})
	}
	if err := l.reviews.SaveReport(ctx, rp); err != nil {
		return err
	}
	slog.Info("final report written", "reviews", len(rp.Reviews), "skills", len(names))
	return nil
}
