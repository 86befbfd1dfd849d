package supervisor

import (
	"os"
	"syscall"
)

// Alive reports whether a process with the given pid exists. Signal 0
// performs the existence check without delivering anything.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
