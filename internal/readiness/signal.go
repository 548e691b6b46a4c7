// Package readiness implements a per-task one-shot latched broadcast
// signal: an initially-false boolean that transitions to true exactly
// once and unblocks every observer.
package readiness

import (
	"context"
	"sync"
)

// Signal is a latched broadcast. The zero value is not usable; construct
// with New.
type Signal struct {
	once sync.Once
	done chan struct{}
}

// New returns a Signal in its initial false state.
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set idempotently transitions the signal to true, unblocking every
// current and future observer. Safe to call any number of times from any
// goroutine.
func (s *Signal) Set() {
	s.once.Do(func() { close(s.done) })
}

// Done exposes the underlying channel for use alongside other suspension
// points in a select statement. It is closed when the signal becomes true.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the signal becomes true or ctx is cancelled, whichever
// happens first. It returns ctx.Err() in the latter case.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsSet reports whether the signal has already transitioned to true,
// without blocking.
func (s *Signal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
