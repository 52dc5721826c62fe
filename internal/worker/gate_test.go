package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGate_PauseAndResume(t *testing.T) {
	t.Parallel()

	g := NewGate()
	require.False(t, g.Paused())
	require.NoError(t, g.Wait(context.Background()), "open gate passes immediately")

	g.Pause()
	g.Pause() // idempotent
	require.True(t, g.Paused())

	released := make(chan error, 1)
	go func() {
		released <- g.Wait(context.Background())
	}()

	select {
	case <-released:
		t.Fatal("Wait returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	g.Resume()
	g.Resume() // idempotent
	require.False(t, g.Paused())
	require.NoError(t, <-released)
}

func TestGate_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	g := NewGate()
	g.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}
