package review

import "time"

// Verdict is the manager's approve/needs-work outcome for one review.
type Verdict string

const (
	VerdictApprove   Verdict = "approve"
	VerdictNeedsWork Verdict = "needs_work"
)

func (v Verdict) Valid() bool {
	return v == VerdictApprove || v == VerdictNeedsWork
}

// Review records one completed review. Written once by the manager and
// never mutated afterward.
type Review struct {
	ID        string    `yaml:"id" json:"id"`
	Iteration int       `yaml:"iteration" json:"iteration"`
	TaskID    string    `yaml:"task_id,omitempty" json:"task_id,omitempty"`
	Verdict   Verdict   `yaml:"verdict" json:"verdict"`
	Score     int       `yaml:"score" json:"score"`
	Findings  string    `yaml:"findings" json:"findings"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// ReportEntry is one review summarized for the final report.
type ReportEntry struct {
	Iteration int     `yaml:"iteration" json:"iteration"`
	Verdict   Verdict `yaml:"verdict" json:"verdict"`
	Score     int     `yaml:"score" json:"score"`
}

// Report aggregates all reviews and skill names once the worker has stopped.
type Report struct {
	GeneratedAt time.Time     `yaml:"generated_at" json:"generated_at"`
	Reviews     []ReportEntry `yaml:"reviews" json:"reviews"`
	SkillNames  []string      `yaml:"skill_names" json:"skill_names"`
}
