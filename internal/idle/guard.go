// Package idle watches user activity and stops a running timer after a
// period of inactivity. Detection is local; the stop itself goes through
// the server like any other stop.
package idle

import (
	"context"
	"sync"
	"time"
)

// Guard fires the idle action at most once per idle episode. Activity or a
// fresh timer re-arms it. While the client is in the background the guard
// holds fire; away-time handling on foreground return owns that case.
type Guard struct {
	mu sync.Mutex

	threshold    time.Duration
	now          func() time.Time
	running      func() bool
	onIdle       func(ctx context.Context, idleFor time.Duration)
	lastActivity time.Time
	foreground   bool
	fired        bool
}

func NewGuard(threshold time.Duration, running func() bool, onIdle func(ctx context.Context, idleFor time.Duration)) *Guard {
	g := &Guard{
		threshold:  threshold,
		now:        time.Now,
		running:    running,
		onIdle:     onIdle,
		foreground: true,
	}
	g.lastActivity = g.now()
	return g
}

// Activity records user input and re-arms the guard.
func (g *Guard) Activity() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastActivity = g.now()
	g.fired = false
}

func (g *Guard) SetForeground(foreground bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.foreground = foreground
	if foreground {
		// Time spent in the background does not count as idle time here.
		g.lastActivity = g.now()
		g.fired = false
	}
}

func (g *Guard) SetThreshold(threshold time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.threshold = threshold
}

// Check evaluates the idle condition once. The caller drives the cadence.
func (g *Guard) Check(ctx context.Context) {
	g.mu.Lock()
	if g.fired || !g.foreground || g.threshold <= 0 || !g.running() {
		g.mu.Unlock()
		return
	}
	idleFor := g.now().Sub(g.lastActivity)
	if idleFor < g.threshold {
		g.mu.Unlock()
		return
	}
	// One shot per episode. If the stop fails the agent reconciles via
	// pull; hammering the server with retries would not help.
	g.fired = true
	onIdle := g.onIdle
	g.mu.Unlock()

	onIdle(ctx, idleFor)
}

// Run checks on the given interval until ctx is cancelled.
func (g *Guard) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
