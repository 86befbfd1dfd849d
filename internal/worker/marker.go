package worker

import (
	"fmt"
	"os"
	"path/filepath"
)

// Completion markers are plain files the agent creates in the working
// directory, outside the state store, because the agent only has filesystem
// access to its own workspace.
const markerDir = ".tandem/markers"

func (l *Loop) markerPath(taskID string) string {
	return filepath.Join(l.cfg.WorkDir, markerDir, taskID+".done")
}

// consumeCompletionMarker reports whether the agent marked the task done and
// removes the marker. Removal makes consumption idempotent: a re-run of the
// same task starts without a stale marker.
func (l *Loop) consumeCompletionMarker(taskID string) (bool, error) {
	path := l.markerPath(taskID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat completion marker: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove completion marker: %w", err)
	}
	return true, nil
}
