// Package orphan implements the crash-recovery registry: a persisted set
// of live child process identifiers that lets a fresh invocation reap
// descendants left behind by a previous crashed run. The store is a
// single newline-delimited decimal-identifiers file in the OS temp
// directory, rewritten in full on every mutation.
package orphan

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tacoss/tequio/internal/metrics"
	"github.com/tacoss/tequio/internal/ptree"
)

const defaultFileName = "tequio-pids.txt"

// Registry is the Supervisor-owned, mutex-serialised set of live child
// PIDs. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	path    string
	pids    map[int]struct{}
	metrics metrics.Collector
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithPath overrides the default persistence path, for tests.
func WithPath(path string) Option {
	return func(r *Registry) { r.path = path }
}

// WithMetrics attaches a metrics collector; omitted, a no-op collector is
// used.
func WithMetrics(c metrics.Collector) Option {
	return func(r *Registry) { r.metrics = c }
}

// New returns a Registry backed by the default path
// (os.TempDir()/tequio-pids.txt) unless overridden with WithPath.
func New(opts ...Option) *Registry {
	r := &Registry{
		path:    filepath.Join(os.TempDir(), defaultFileName),
		pids:    make(map[int]struct{}),
		metrics: metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recover reads any existing store left by a prior run, attempts to kill
// the descendant tree rooted at every identifier found, ignoring errors,
// then removes the store. It must be called exactly once at startup
// before any task spawns.
func (r *Registry) Recover() {
	r.mu.Lock()
	defer r.mu.Unlock()

	stale := r.readFile()
	for _, pid := range stale {
		ptree.Kill(pid)
	}
	if len(stale) > 0 {
		r.metrics.OrphansReaped(len(stale))
	}
	_ = os.Remove(r.path)
}

// Register idempotently adds pid to the set and persists it.
func (r *Registry) Register(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pids[pid]; ok {
		return
	}
	r.pids[pid] = struct{}{}
	r.persist()
}

// Unregister removes pid from the set. If the set becomes empty the store
// file is removed; otherwise it is rewritten.
func (r *Registry) Unregister(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pids, pid)
	if len(r.pids) == 0 {
		_ = os.Remove(r.path)
		return
	}
	r.persist()
}

// Cleanup kills the descendant tree of every identifier currently held,
// then removes the store. It must be called exactly once at supervisor
// shutdown.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pid := range r.pids {
		ptree.Kill(pid)
	}
	r.pids = make(map[int]struct{})
	_ = os.Remove(r.path)
}

// readFile parses the store, skipping blank or unparseable lines. Caller
// must hold r.mu.
func (r *Registry) readFile() []int {
	f, err := os.Open(r.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var pids []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

// persist rewrites the store file in full from the in-memory set. Caller
// must hold r.mu. I/O errors are ignored: the registry is best-effort.
func (r *Registry) persist() {
	var b strings.Builder
	for pid := range r.pids {
		fmt.Fprintf(&b, "%d\n", pid)
	}
	_ = os.WriteFile(r.path, []byte(b.String()), 0o644)
}
