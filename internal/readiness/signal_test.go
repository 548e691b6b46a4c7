package readiness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_InitiallyFalse(t *testing.T) {
	s := New()
	assert.False(t, s.IsSet())
}

func TestSignal_SetUnblocksWaiters(t *testing.T) {
	s := New()

	done := make(chan struct{})
	go func() {
		require.NoError(t, s.Wait(context.Background()))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("waiter unblocked before Set")
	case <-time.After(20 * time.Millisecond):
	}

	s.Set()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not unblock after Set")
	}
}

func TestSignal_SetIsIdempotent(t *testing.T) {
	s := New()
	assert.NotPanics(t, func() {
		s.Set()
		s.Set()
		s.Set()
	})
	assert.True(t, s.IsSet())
}

func TestSignal_WaitReturnsImmediatelyIfAlreadySet(t *testing.T) {
	s := New()
	s.Set()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Wait(ctx))
}

func TestSignal_WaitRespectsContextCancellation(t *testing.T) {
	s := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
