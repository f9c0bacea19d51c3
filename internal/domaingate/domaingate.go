// Package domaingate bounds how many in-flight fetches a single host may
// have at once, independent of the global worker-concurrency limit and
// independent of pkg/limiter's inter-request pacing.
package domaingate

import (
	"context"
	"sync"
)

// Gate is a map from host to a bounded counter of capacity maxPerDomain.
// Entries are created lazily under a short mutex; the mutex is held only
// for map lookup/insertion, never while a caller waits on a counter.
type Gate struct {
	mu           sync.Mutex
	maxPerDomain int
	hosts        map[string]chan struct{}
}

// New creates a Gate with the given per-host concurrency cap. A
// non-positive cap is treated as 1: every host still gets a gate.
func New(maxPerDomain int) *Gate {
	if maxPerDomain < 1 {
		maxPerDomain = 1
	}
	return &Gate{
		maxPerDomain: maxPerDomain,
		hosts:        make(map[string]chan struct{}),
	}
}

func (g *Gate) counterFor(host string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.hosts[host]
	if !ok {
		c = make(chan struct{}, g.maxPerDomain)
		g.hosts[host] = c
	}
	return c
}

// Acquire blocks until a slot for host is available, or ctx is done.
// It returns a release func to call when the fetch completes, or an
// error if ctx was cancelled first.
func (g *Gate) Acquire(ctx context.Context, host string) (release func(), err error) {
	counter := g.counterFor(host)
	select {
	case counter <- struct{}{}:
		return func() { <-counter }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
}

// InFlight reports the current in-flight count for host, for metrics and
// tests. A host never seen returns 0 without creating an entry.
func (g *Gate) InFlight(host string) int {
	g.mu.Lock()
	c, ok := g.hosts[host]
	g.mu.Unlock()
	if !ok {
		return 0
	}
	return len(c)
}

// TotalInFlight sums InFlight across every host the gate has ever seen,
// for a single run-wide occupancy gauge (obsmetrics.Collector).
func (g *Gate) TotalInFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, c := range g.hosts {
		total += len(c)
	}
	return total
}
