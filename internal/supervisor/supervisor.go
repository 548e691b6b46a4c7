// Package supervisor wires a loaded manifest to task runners, owns
// shutdown-signal distribution, races task completion against user exit
// and OS signals, and drives the orphan registry's lifecycle.
package supervisor

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tacoss/tequio/internal/manifest"
	"github.com/tacoss/tequio/internal/metrics"
	"github.com/tacoss/tequio/internal/orphan"
	"github.com/tacoss/tequio/internal/pane"
	"github.com/tacoss/tequio/internal/readiness"
	"github.com/tacoss/tequio/internal/runner"
	"github.com/tacoss/tequio/internal/tqerr"
)

// completionGrace is the cosmetic pause after every task finishes
// naturally, giving the user a moment to read final pane state.
const completionGrace = 2 * time.Second

// drainGrace is the hard bound given to in-flight descendant kills before
// the orphan registry force-cleans whatever remains.
const drainGrace = 500 * time.Millisecond

// Supervisor owns the full lifecycle of one manifest run.
type Supervisor struct {
	path    string
	workDir string

	order   []string
	runners map[string]*runner.Runner
	signals map[string]*readiness.Signal

	shutdown     *readiness.Signal
	registry     *orphan.Registry
	registryPath string
	sender       *pane.Sender
	receiver     *pane.Receiver
	metrics      metrics.Collector

	out *os.File
}

// Option configures a Supervisor at construction.
type Option func(*Supervisor)

// WithMetrics attaches a metrics collector; omitted, a no-op collector is
// used.
func WithMetrics(c metrics.Collector) Option {
	return func(s *Supervisor) { s.metrics = c }
}

// WithRegistryPath overrides the orphan registry's persistence path, for
// tests.
func WithRegistryPath(path string) Option {
	return func(s *Supervisor) { s.registryPath = path }
}

// WithWorkDir overrides the default working directory used for tasks that
// do not declare their own.
func WithWorkDir(dir string) Option {
	return func(s *Supervisor) { s.workDir = dir }
}

// New loads and orders the manifest at path and builds one runner per
// task, wired with its own readiness signal, reader clones of its
// dependencies' signals, and the shared shutdown signal, registry, pane
// sender, and metrics collector.
func New(path string, opts ...Option) (*Supervisor, error) {
	workDir, err := os.Getwd()
	if err != nil {
		workDir = "."
	}

	s := &Supervisor{
		path:     path,
		workDir:  workDir,
		runners:  make(map[string]*runner.Runner),
		signals:  make(map[string]*readiness.Signal),
		shutdown: readiness.New(),
		metrics:  metrics.NewNoop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	registryOpts := []orphan.Option{orphan.WithMetrics(s.metrics)}
	if s.registryPath != "" {
		registryOpts = append(registryOpts, orphan.WithPath(s.registryPath))
	}
	s.registry = orphan.New(registryOpts...)
	s.sender, s.receiver = pane.New()

	specs, err := manifest.LoadOrdered(path)
	if err != nil {
		return nil, err
	}

	for _, spec := range specs {
		s.signals[spec.Name] = readiness.New()
		s.order = append(s.order, spec.Name)
	}

	for _, spec := range specs {
		deps := make([]*readiness.Signal, 0, len(spec.DependsOn))
		for _, dep := range spec.DependsOn {
			deps = append(deps, s.signals[dep])
		}
		s.runners[spec.Name] = runner.New(
			spec,
			s.signals[spec.Name],
			deps,
			s.shutdown,
			s.registry,
			s.sender,
			s.metrics,
			s.workDir,
		)
	}

	return s, nil
}

// Run executes the supervision loop: recover orphans, spawn every runner
// concurrently, render their output, and race completion against UI exit
// and OS signals.
func (s *Supervisor) Run(ctx context.Context) error {
	s.registry.Recover()
	s.metrics.ActiveTasks(len(s.order))

	var active atomic.Int64
	active.Store(int64(len(s.order)))

	var wg sync.WaitGroup
	for _, name := range s.order {
		wg.Add(1)
		r := s.runners[name]
		go func() {
			defer wg.Done()
			r.Run(ctx)
			s.metrics.ActiveTasks(int(active.Add(-1)))
		}()
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	uiCtx, cancelUI := context.WithCancel(ctx)
	defer cancelUI()
	uiDone := make(chan error, 1)
	go func() {
		uiDone <- pane.RunApp(uiCtx, s.order, s.receiver, s.stdout())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var uiErr error
	uiConsumed := false

	select {
	case <-allDone:
		slog.Info("all tasks finished, pausing before shutdown")
		time.Sleep(completionGrace)
		s.sender.Stop()

	case err := <-uiDone:
		slog.Info("ui exited, broadcasting shutdown")
		uiErr = err
		uiConsumed = true
		s.shutdown.Set()

	case sig := <-sigCh:
		slog.Info("signal received, broadcasting shutdown", "signal", sig.String())
		s.shutdown.Set()
		s.sender.Stop()
	}

	time.Sleep(drainGrace)
	s.registry.Cleanup()
	s.metrics.ActiveTasks(0)

	if !uiConsumed {
		uiErr = <-uiDone
	}
	wg.Wait()

	if uiErr != nil {
		return tqerr.UIFailed(uiErr)
	}
	return nil
}

func (s *Supervisor) stdout() *os.File {
	if s.out != nil {
		return s.out
	}
	return os.Stdout
}

// Health returns a point-in-time snapshot of every tracked task's state.
// It is a diagnostics surface only: it does not gate or alter Run's exit
// policy.
type Health struct {
	TotalTasks       int
	RunningTasks     int
	TerminatingTasks int
	FailedTasks      int
	Tasks            map[string]TaskHealth
}

// TaskHealth is one task's contribution to a Health snapshot.
type TaskHealth struct {
	State   runner.State
	Healthy bool
	Uptime  time.Duration
	Error   string
}

// Health aggregates the current state of every tracked runner.
func (s *Supervisor) Health() Health {
	h := Health{Tasks: make(map[string]TaskHealth, len(s.order))}

	for _, name := range s.order {
		r := s.runners[name]
		state := r.State()
		terminating := r.Terminating()

		h.TotalTasks++
		switch {
		case terminating:
			h.TerminatingTasks++
		case state == runner.StateFailed:
			h.FailedTasks++
		case state == runner.StateRunning:
			h.RunningTasks++
		}

		h.Tasks[name] = TaskHealth{
			State:   state,
			Healthy: !terminating && state != runner.StateFailed,
			Uptime:  r.Uptime(),
			Error:   r.FailureReason(),
		}
	}

	return h
}
