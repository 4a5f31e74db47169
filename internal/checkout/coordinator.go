package checkout

import (
	"context"
	"log"
	"sync"
	"time"
)

// Coordinator hands out one selector per checkout session so repeated HTTP
// requests land on the same state machine. Sessions that go quiet are
// cancelled and reclaimed by Sweep on the same clock the pending-order TTL
// runs on.
type Coordinator struct {
	deps *SelectorDeps

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	sel      *Selector
	lastSeen time.Time
}

func NewCoordinator(deps *SelectorDeps) *Coordinator {
	return &Coordinator{
		deps:     deps,
		sessions: make(map[string]*sessionEntry),
	}
}

func (c *Coordinator) Session(sessionKey string) *Selector {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.sessions[sessionKey]
	if !ok {
		entry = &sessionEntry{sel: NewSelector(c.deps, sessionKey)}
		c.sessions[sessionKey] = entry
	}
	entry.lastSeen = c.now()
	return entry.sel
}

// Release drops a finished selector. Terminal sessions hold no retry state
// worth keeping, so the finalizer bookkeeping goes with them.
func (c *Coordinator) Release(sessionKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.sessions[sessionKey]; ok && entry.sel.State().IsTerminal() {
		delete(c.sessions, sessionKey)
		c.deps.Finalizer.Forget(sessionKey)
	}
}

// Sweep cancels and drops sessions idle for longer than maxIdle. An abandoned
// session's pending order expires out of the bridge on its own TTL; the
// selector and the finalizer's per-key bookkeeping are what remains to
// reclaim. Sessions mid-finalization are kept. Returns the number dropped.
func (c *Coordinator) Sweep(maxIdle time.Duration) int {
	cutoff := c.now().Add(-maxIdle)
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, entry := range c.sessions {
		if entry.lastSeen.After(cutoff) {
			continue
		}
		if !entry.sel.Abandon() {
			continue
		}
		delete(c.sessions, key)
		c.deps.Finalizer.Forget(key)
		dropped++
	}
	return dropped
}

// Run sweeps on the interval until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(maxIdle); n > 0 {
				log.Printf("swept %d abandoned checkout sessions", n)
			}
		}
	}
}

func (c *Coordinator) now() time.Time {
	if c.deps.Now != nil {
		return c.deps.Now()
	}
	return time.Now()
}
