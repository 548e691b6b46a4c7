package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacoss/tequio/internal/manifest"
	"github.com/tacoss/tequio/internal/metrics"
	"github.com/tacoss/tequio/internal/orphan"
	"github.com/tacoss/tequio/internal/pane"
	"github.com/tacoss/tequio/internal/readiness"
)

func newTestRunner(t *testing.T, spec manifest.TaskSpec, deps []*readiness.Signal, shutdown *readiness.Signal) (*Runner, *readiness.Signal, *pane.Receiver) {
	t.Helper()
	own := readiness.New()
	registry := orphan.New(orphan.WithPath(t.TempDir() + "/pids.txt"))
	sender, receiver := pane.New()
	r := New(spec, own, deps, shutdown, registry, sender, metrics.NewNoop(), t.TempDir())
	return r, own, receiver
}

func TestRunner_SucceedsAndSetsReadiness(t *testing.T) {
	shutdown := readiness.New()
	spec := manifest.TaskSpec{Name: "a", Command: "echo hello"}
	r, own, _ := newTestRunner(t, spec, nil, shutdown)

	r.Run(context.Background())

	assert.Equal(t, StateSucceeded, r.State())
	assert.True(t, own.IsSet())
}

func TestRunner_NonZeroExitMarksFailedButSetsReadiness(t *testing.T) {
	shutdown := readiness.New()
	spec := manifest.TaskSpec{Name: "a", Command: "false"}
	r, own, _ := newTestRunner(t, spec, nil, shutdown)

	r.Run(context.Background())

	assert.Equal(t, StateFailed, r.State())
	assert.True(t, own.IsSet())
	assert.Contains(t, r.FailureReason(), "PROCESS_EXIT_NONZERO")
	assert.Contains(t, r.FailureReason(), "process exited with code 1")
}

func TestRunner_SpawnFailureMarksFailedAndSetsReadiness(t *testing.T) {
	shutdown := readiness.New()
	spec := manifest.TaskSpec{Name: "a", Command: "true", WorkDir: "/path/does/not/exist"}
	r, own, _ := newTestRunner(t, spec, nil, shutdown)

	r.Run(context.Background())

	assert.Equal(t, StateFailed, r.State())
	assert.True(t, own.IsSet())
	assert.Contains(t, r.FailureReason(), "SPAWN_FAILED")
}

func TestRunner_WaitsForDependencyBeforeRunning(t *testing.T) {
	shutdown := readiness.New()
	dep := readiness.New()
	spec := manifest.TaskSpec{Name: "b", Command: "echo hi", DependsOn: []string{"a"}}
	r, own, _ := newTestRunner(t, spec, []*readiness.Signal{dep}, shutdown)

	runDone := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(runDone)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateWaiting, r.State())
	assert.False(t, own.IsSet())

	dep.Set()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not complete after dependency became ready")
	}
	assert.Equal(t, StateSucceeded, r.State())
}

func TestRunner_ShutdownWhileWaitingForDependencyFailsWithoutSpawning(t *testing.T) {
	shutdown := readiness.New()
	dep := readiness.New() // never set
	spec := manifest.TaskSpec{Name: "b", Command: "echo hi", DependsOn: []string{"a"}}
	r, own, _ := newTestRunner(t, spec, []*readiness.Signal{dep}, shutdown)

	runDone := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(runDone)
	}()

	time.Sleep(20 * time.Millisecond)
	shutdown.Set()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not return after shutdown during dependency wait")
	}

	assert.Equal(t, StateFailed, r.State())
	assert.True(t, own.IsSet())
}

func TestRunner_ShutdownKillsDescendantTree(t *testing.T) {
	shutdown := readiness.New()
	spec := manifest.TaskSpec{Name: "srv", Command: "while true; do sleep 1; done"}
	r, own, _ := newTestRunner(t, spec, nil, shutdown)

	runDone := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(runDone)
	}()

	require.Eventually(t, func() bool { return r.State() == StateRunning }, time.Second, 10*time.Millisecond)

	shutdown.Set()

	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not terminate after shutdown")
	}

	assert.Equal(t, StateFailed, r.State())
	assert.True(t, own.IsSet())
}

func TestRunner_ReadyCheckGatesReadinessUntilMatched(t *testing.T) {
	shutdown := readiness.New()
	spec := manifest.TaskSpec{
		Name:       "server",
		Command:    "echo starting; sleep 0.2; echo READY; sleep 5",
		ReadyCheck: "READY",
	}
	r, own, _ := newTestRunner(t, spec, nil, shutdown)

	runDone := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(runDone)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, own.IsSet(), "readiness must not fire before the ready_check line is seen")

	require.Eventually(t, func() bool { return own.IsSet() }, 2*time.Second, 10*time.Millisecond)

	shutdown.Set()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not terminate after shutdown")
	}
}
