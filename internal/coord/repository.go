package coord

import "context"

// Repository owns the coordination documents shared between the worker, the
// manager and the supervisor. Single-writer discipline: the worker writes
// the iteration counter, the review signal and the notes; the manager writes
// the watermark and the directive; the supervisor writes liveness records.
type Repository interface {
	// Iteration counter, owned by the worker. Zero when absent.
	Iteration(ctx context.Context) (int, error)
	SetIteration(ctx context.Context, n int) error

	// Review signal: the last iteration the worker believes is ready for
	// review. ok is false when no signal is pending.
	ReviewSignal(ctx context.Context) (iteration int, ok bool, err error)
	SetReviewSignal(ctx context.Context, iteration int) error
	// ClearReviewSignal is idempotent.
	ClearReviewSignal(ctx context.Context) error

	// Last-reviewed watermark, owned by the manager. Zero when absent.
	Watermark(ctx context.Context) (int, error)
	SetWatermark(ctx context.Context, iteration int) error

	// Directive handoff. Directive returns nil when none is pending.
	// TakeDirective reads and clears in one call; a crash between read and
	// clear may redeliver, which is acceptable for idempotent guidance.
	Directive(ctx context.Context) (*Directive, error)
	SetDirective(ctx context.Context, text string) error
	TakeDirective(ctx context.Context) (*Directive, error)

	// Per-loop status markers. Status returns a stopped marker when the
	// document is absent.
	Status(ctx context.Context, role Role) (*StatusMarker, error)
	SetStatus(ctx context.Context, role Role, status ProcessStatus) error

	// Liveness records, owned by the supervisor. Liveness returns nil when
	// no record exists.
	Liveness(ctx context.Context, role Role) (*LivenessRecord, error)
	SetLiveness(ctx context.Context, role Role, pid int) error
	ClearLiveness(ctx context.Context, role Role) error

	// Progress notes, appended by the worker after each iteration.
	Notes(ctx context.Context) ([]ProgressNote, error)
	AppendNote(ctx context.Context, note ProgressNote) error
}
