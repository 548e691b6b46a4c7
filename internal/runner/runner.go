// Package runner drives a single task through its full lifecycle: wait
// for dependencies, spawn, stream output, detect readiness, and race
// completion against shutdown.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tacoss/tequio/internal/manifest"
	"github.com/tacoss/tequio/internal/metrics"
	"github.com/tacoss/tequio/internal/orphan"
	"github.com/tacoss/tequio/internal/pane"
	"github.com/tacoss/tequio/internal/ptree"
	"github.com/tacoss/tequio/internal/readiness"
	"github.com/tacoss/tequio/internal/tqerr"
)

// State is one of the four runner lifecycle states.
type State string

const (
	StateWaiting   State = "waiting"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// maxLineSize bounds the buffer bufio.Scanner grows to per line, generous
// enough for noisy build tool output without being unbounded.
const maxLineSize = 1 << 20

// Runner owns one task's lifecycle. Construct with New; a Runner is used
// exactly once.
type Runner struct {
	spec    manifest.TaskSpec
	ready   *readiness.Signal   // this task's own signal; Runner is the sole writer.
	deps    []*readiness.Signal // reader clones of every dependency's signal.
	shutdown *readiness.Signal  // reader clone of the supervisor-wide shutdown signal.
	registry *orphan.Registry
	sender   *pane.Sender
	metrics  metrics.Collector
	defaultWorkDir string

	state        atomic.Value // State
	terminating  atomic.Bool
	startedAt    time.Time
	failure      atomic.Value // string, empty until a failure is recorded
}

// New constructs a Runner for spec. deps must contain one reader per
// declared dependency, in any order; shutdown is the supervisor-wide
// shutdown signal; defaultWorkDir is used when spec.WorkDir is empty.
func New(spec manifest.TaskSpec, ready *readiness.Signal, deps []*readiness.Signal, shutdown *readiness.Signal, registry *orphan.Registry, sender *pane.Sender, collector metrics.Collector, defaultWorkDir string) *Runner {
	r := &Runner{
		spec:           spec,
		ready:          ready,
		deps:           deps,
		shutdown:       shutdown,
		registry:       registry,
		sender:         sender,
		metrics:        collector,
		defaultWorkDir: defaultWorkDir,
	}
	r.setState(StateWaiting)
	return r
}

// State returns the runner's current lifecycle state.
func (r *Runner) State() State {
	return r.state.Load().(State)
}

// Terminating reports whether a shutdown-triggered kill of this task's
// process tree is currently in flight.
func (r *Runner) Terminating() bool {
	return r.terminating.Load()
}

// Uptime returns how long this runner has been alive since Run began, or
// zero if Run has not been called.
func (r *Runner) Uptime() time.Duration {
	if r.startedAt.IsZero() {
		return 0
	}
	return time.Since(r.startedAt)
}

// FailureReason returns the most recent failure's description, or the
// empty string if the task has never failed.
func (r *Runner) FailureReason() string {
	if v := r.failure.Load(); v != nil {
		return v.(string)
	}
	return ""
}

func (r *Runner) setState(s State) {
	r.state.Store(s)
	r.metrics.TaskStateChanged(r.spec.Name, string(s))
}

func (r *Runner) setFailure(reason string) {
	r.failure.Store(reason)
}

// Run executes the full lifecycle described in the task runner contract.
// It always sets the runner's readiness signal before returning
// (liveness invariant) and never returns an error that should alter the
// supervisor's own exit status — per-task failures are surfaced only into
// the pane and the logs.
func (r *Runner) Run(ctx context.Context) {
	r.startedAt = time.Now()
	pw := r.sender.Task(r.spec.Name)
	pw.Start()

	if len(r.deps) > 0 {
		r.sender.Status(r.spec.Name, "waiting", false)
		if !r.awaitDeps(ctx) {
			r.ready.Set()
			r.setState(StateFailed)
			r.setFailure("shutdown while waiting for dependencies")
			pw.Failed("shutdown while waiting for dependencies")
			return
		}
	}

	if r.shutdown.IsSet() {
		r.ready.Set()
		r.setState(StateFailed)
		r.setFailure("shutdown before spawn")
		pw.Failed("shutdown before spawn")
		return
	}

	r.sender.Status(r.spec.Name, "running", false)
	r.setState(StateRunning)

	workDir := r.spec.WorkDir
	if workDir == "" {
		workDir = r.defaultWorkDir
	}

	cmd := exec.Command("sh", "-c", r.spec.Command)
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.failSpawn(pw, err)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.failSpawn(pw, err)
		return
	}

	if err := cmd.Start(); err != nil {
		r.failSpawn(pw, err)
		return
	}

	pid := cmd.Process.Pid
	spawnedAt := time.Now()
	r.registry.Register(pid)
	r.metrics.TaskSpawned(r.spec.Name)

	var readyOnce sync.Once
	markReady := func() {
		readyOnce.Do(func() {
			r.ready.Set()
			r.metrics.ReadinessObserved(r.spec.Name, time.Since(spawnedAt))
		})
	}

	if r.spec.ReadyCheck == "" {
		markReady()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go r.streamStdout(&wg, pw, stdout, markReady)
	go r.streamStderr(&wg, pw, stderr)

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		wg.Wait()
		markReady()
		r.registry.Unregister(pid)
		r.finish(pw, err)

	case <-r.shutdown.Done():
		r.terminating.Store(true)
		ptree.Kill(pid)
		<-waitErr
		wg.Wait()
		r.terminating.Store(false)
		markReady()
		r.registry.Unregister(pid)
		r.setState(StateFailed)
		r.setFailure("shutdown")
		pw.Failed("shutdown")
		r.metrics.TaskExited(r.spec.Name, "failed", time.Since(r.startedAt))
	}
}

// awaitDeps waits for every dependency's readiness, racing shutdown. It
// returns false if shutdown won the race.
func (r *Runner) awaitDeps(ctx context.Context) bool {
	for _, dep := range r.deps {
		select {
		case <-dep.Done():
		case <-r.shutdown.Done():
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (r *Runner) failSpawn(pw *pane.PaneWriter, err error) {
	domainErr := tqerr.SpawnFailed(r.spec.Name, err)
	slog.Error("task failed to spawn", "task", r.spec.Name, "error", domainErr)
	pw.WriteLine(fmt.Sprintf("failed to start: %v", err))
	pw.Failed(domainErr.Error())
	r.setState(StateFailed)
	r.setFailure(domainErr.Error())
	r.ready.Set()
	r.metrics.TaskSpawnFailed(r.spec.Name)
}

func (r *Runner) finish(pw *pane.PaneWriter, waitErr error) {
	elapsed := time.Since(r.startedAt)

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		r.setState(StateSucceeded)
		pw.Succeeded()
		r.metrics.TaskExited(r.spec.Name, "succeeded", elapsed)

	case errors.As(waitErr, &exitErr):
		code := exitErr.ExitCode()
		domainErr := tqerr.ProcessExitNonZero(r.spec.Name, code)
		pw.WriteLine(fmt.Sprintf("process exited with code %d", code))
		pw.Failed(domainErr.Error())
		r.setState(StateFailed)
		r.setFailure(domainErr.Error())
		r.metrics.TaskExited(r.spec.Name, "failed", elapsed)

	default:
		domainErr := tqerr.ProcessWaitFailed(r.spec.Name, waitErr)
		pw.WriteLine(fmt.Sprintf("error waiting on process: %v", waitErr))
		pw.Failed(domainErr.Error())
		r.setState(StateFailed)
		r.setFailure(domainErr.Error())
		r.metrics.TaskExited(r.spec.Name, "failed", elapsed)
	}
}

func (r *Runner) streamStdout(wg *sync.WaitGroup, pw *pane.PaneWriter, rc io.Reader, markReady func()) {
	defer wg.Done()
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		pw.WriteLine(line)
		if r.spec.ReadyCheck != "" && strings.Contains(strings.TrimSpace(line), r.spec.ReadyCheck) {
			markReady()
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		slog.Error("stdout scan failed", "task", r.spec.Name, "error", err)
	}
}

func (r *Runner) streamStderr(wg *sync.WaitGroup, pw *pane.PaneWriter, rc io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		pw.WriteLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		slog.Error("stderr scan failed", "task", r.spec.Name, "error", err)
	}
}
