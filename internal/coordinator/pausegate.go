package coordinator

import (
	"context"
	"sync"
	"time"
)

// PauseGate is a single level-triggered binary signal shared by every
// worker: Set opens it (releasing all current and future waiters until
// the next Clear), Clear closes it (the next Wait call suspends).
type PauseGate struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewPauseGate returns a gate that starts open.
func NewPauseGate() *PauseGate {
	ch := make(chan struct{})
	close(ch)
	return &PauseGate{ch: ch}
}

// Set opens the gate, releasing every waiter.
func (g *PauseGate) Set() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		// already open
	default:
		close(g.ch)
	}
}

// Clear closes the gate; the next Wait call suspends until Set.
func (g *PauseGate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		g.ch = make(chan struct{})
	default:
		// already cleared
	}
}

// Wait blocks until the gate opens, ctx is done, or safetyTimeout
// elapses, whichever comes first. A safety-timeout return never mutates
// the gate, so as not to race with a coordinator that may clear it a
// moment later.
func (g *PauseGate) Wait(ctx context.Context, safetyTimeout time.Duration) {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	timer := time.NewTimer(safetyTimeout)
	defer timer.Stop()

	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
	}
}
