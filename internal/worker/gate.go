// Package worker implements the per-run crawl pipeline execution loop.
package worker

import (
	"context"
	"fmt"
	"sync"
)

// Gate is a cooperative pause point shared by a run's workers. Workers call
// Wait before picking up new work; in-flight items always finish.
type Gate struct {
	mu      sync.Mutex
	resumed chan struct{} // closed while running
	paused  bool
}

// NewGate returns a Gate in the running state.
func NewGate() *Gate {
	g := &Gate{resumed: make(chan struct{})}
	close(g.resumed)
	return g
}

// Pause stops workers from starting new items. Idempotent.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.resumed = make(chan struct{})
}

// Resume releases all workers blocked in Wait. Idempotent.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resumed)
}

// Paused reports the current state.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait blocks while the gate is paused. It returns immediately when running.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.paused {
			g.mu.Unlock()
			return nil
		}
		ch := g.resumed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("gate wait: %w", ctx.Err())
		case <-ch:
		}
	}
}
