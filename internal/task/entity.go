package task

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	// StatusBlocked is a dashboard-facing status set by operator edits,
	// never by the worker's own transitions.
	StatusBlocked Status = "blocked"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// Open reports whether the task still needs worker attention.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

// CanTransition reports whether the worker may move a task from s to next.
// Transitions are monotonic: pending -> in_progress -> completed. Re-entering
// in_progress is allowed so a restarted worker can resume its current task.
func (s Status) CanTransition(next Status) bool {
	switch next {
	case StatusInProgress:
		return s == StatusPending || s == StatusInProgress
	case StatusCompleted:
		return s == StatusInProgress
	default:
		return false
	}
}

// Task is one unit of work in the queue.
type Task struct {
	ID                 string     `yaml:"id" json:"id"`
	Title              string     `yaml:"title" json:"title"`
	Description        string     `yaml:"description" json:"description"`
	AcceptanceCriteria []string   `yaml:"acceptance_criteria,omitempty" json:"acceptance_criteria,omitempty"`
	Status             Status     `yaml:"status" json:"status"`
	EstimatedEffort    int        `yaml:"estimated_effort,omitempty" json:"estimated_effort,omitempty"`
	ActualEffort       int        `yaml:"actual_effort,omitempty" json:"actual_effort,omitempty"`
	Dependencies       []string   `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	CreatedAt          time.Time  `yaml:"created_at" json:"created_at"`
	StartedAt          *time.Time `yaml:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt        *time.Time `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
}
