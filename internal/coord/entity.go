package coord

import "time"

// Role identifies one of the two supervised loops.
type Role string

const (
	RoleWorker  Role = "worker"
	RoleManager Role = "manager"
)

// ProcessStatus is the persisted lifecycle state of a loop. Loops update it
// before exiting so the supervisor's status view is always durable.
type ProcessStatus string

const (
	StatusRunning   ProcessStatus = "running"
	StatusStopping  ProcessStatus = "stopping"
	StatusStopped   ProcessStatus = "stopped"
	StatusCompleted ProcessStatus = "completed"
	StatusFailed    ProcessStatus = "failed"
)

// Terminal reports whether the loop has exited (or never ran).
func (s ProcessStatus) Terminal() bool {
	switch s {
	case StatusStopped, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// StatusMarker is the persisted status document for one loop.
type StatusMarker struct {
	Status    ProcessStatus `yaml:"status"`
	UpdatedAt time.Time     `yaml:"updated_at"`
}

// LivenessRecord holds the OS process id of a supervised loop at launch
// time. Validity is determined by probing the pid, not by heartbeats; a
// record whose pid is dead is stale and treated as "not running".
type LivenessRecord struct {
	PID       int       `yaml:"pid"`
	StartedAt time.Time `yaml:"started_at"`
}

// Directive is an optional manager-to-worker message, consumed by the worker
// on its next context build. Delivery is at-most-once per write, best effort.
type Directive struct {
	Text      string    `yaml:"text"`
	CreatedAt time.Time `yaml:"created_at"`
}

// ProgressNote is a one-line record of a completed worker iteration, fed
// back into later context builds.
type ProgressNote struct {
	Iteration int       `yaml:"iteration"`
	TaskID    string    `yaml:"task_id"`
	Summary   string    `yaml:"summary"`
	CreatedAt time.Time `yaml:"created_at"`
}
