// Package metrics instruments the supervisor and its task runners.
//
// Callers depend on the Collector interface so tests can run against
// NewNoop() without pulling in a Prometheus registry.
package metrics

import "time"

// Collector receives instrumentation events from the supervisor and its
// runners. All methods must be safe for concurrent use.
type Collector interface {
	// TaskStateChanged records a task's transition into a new lifecycle
	// state (waiting, running, succeeded, failed).
	TaskStateChanged(task, state string)

	// TaskSpawned increments the count of successfully spawned children.
	TaskSpawned(task string)

	// TaskSpawnFailed increments the count of failed spawn attempts.
	TaskSpawnFailed(task string)

	// TaskExited records a terminal outcome and the task's total runtime.
	TaskExited(task, outcome string, runtime time.Duration)

	// ReadinessObserved records how long a task waited from spawn to its
	// own readiness signal becoming true.
	ReadinessObserved(task string, wait time.Duration)

	// OrphansReaped records how many stale PIDs startup recovery found in
	// the store and attempted to kill.
	OrphansReaped(count int)

	// ActiveTasks sets the current gauge of tasks not yet in a terminal
	// state.
	ActiveTasks(n int)
}

type noop struct{}

// NewNoop returns a Collector that discards every event.
func NewNoop() Collector { return noop{} }

func (noop) TaskStateChanged(string, string)             {}
func (noop) TaskSpawned(string)                          {}
func (noop) TaskSpawnFailed(string)                      {}
func (noop) TaskExited(string, string, time.Duration)    {}
func (noop) ReadinessObserved(string, time.Duration)     {}
func (noop) OrphansReaped(int)                           {}
func (noop) ActiveTasks(int)                             {}

var _ Collector = noop{}
