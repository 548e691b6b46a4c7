// Package ptree terminates a process and its descendants as a unit.
//
// Every task is spawned in its own process group (see internal/runner), so
// killing the group by sending a signal to the negative PID reaches the
// shell and everything the shell has forked, not just the direct child.
package ptree

import (
	"syscall"
	"time"
)

// GracePeriod is how long Kill waits after SIGTERM before escalating to
// SIGKILL.
const GracePeriod = 3 * time.Second

// Kill sends SIGTERM to the process group rooted at pid, waits up to
// GracePeriod for it to exit, then sends SIGKILL if it is still alive.
// Errors are ignored throughout: this is a best-effort cleanup primitive
// per the process-tree kill collaborator contract, and pid may already be
// gone by the time Kill runs.
func Kill(pid int) {
	if pid <= 0 {
		return
	}

	_ = syscall.Kill(-pid, syscall.SIGTERM)

	deadline := time.Now().Add(GracePeriod)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(-pid, syscall.Signal(0)); err != nil {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}

	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
