package idle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(threshold time.Duration, running *bool, fired *int) (*Guard, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	g := NewGuard(threshold,
		func() bool { return *running },
		func(ctx context.Context, idleFor time.Duration) { *fired++ },
	)
	g.now = clock.now
	g.lastActivity = clock.t
	return g, clock
}

func TestGuardFiresOncePerEpisode(t *testing.T) {
	running := true
	fired := 0
	g, clock := newTestGuard(10*time.Minute, &running, &fired)

	clock.advance(9 * time.Minute)
	g.Check(context.Background())
	assert.Equal(t, 0, fired)

	clock.advance(2 * time.Minute)
	g.Check(context.Background())
	assert.Equal(t, 1, fired)

	// Stays quiet until activity re-arms it.
	clock.advance(30 * time.Minute)
	g.Check(context.Background())
	assert.Equal(t, 1, fired)

	g.Activity()
	clock.advance(11 * time.Minute)
	g.Check(context.Background())
	assert.Equal(t, 2, fired)
}

func TestGuardActivityResetsClock(t *testing.T) {
	running := true
	fired := 0
	g, clock := newTestGuard(10*time.Minute, &running, &fired)

	for i := 0; i < 6; i++ {
		clock.advance(9 * time.Minute)
		g.Activity()
		g.Check(context.Background())
	}
	assert.Equal(t, 0, fired)
}

func TestGuardIgnoresStoppedTimer(t *testing.T) {
	running := false
	fired := 0
	g, clock := newTestGuard(10*time.Minute, &running, &fired)

	clock.advance(time.Hour)
	g.Check(context.Background())
	assert.Equal(t, 0, fired)

	running = true
	g.Check(context.Background())
	assert.Equal(t, 1, fired)
}

func TestGuardHoldsFireInBackground(t *testing.T) {
	running := true
	fired := 0
	g, clock := newTestGuard(10*time.Minute, &running, &fired)

	g.SetForeground(false)
	clock.advance(time.Hour)
	g.Check(context.Background())
	assert.Equal(t, 0, fired)

	// Returning to the foreground restarts the idle clock.
	g.SetForeground(true)
	g.Check(context.Background())
	assert.Equal(t, 0, fired)

	clock.advance(11 * time.Minute)
	g.Check(context.Background())
	assert.Equal(t, 1, fired)
}

func TestGuardDisabledThreshold(t *testing.T) {
	running := true
	fired := 0
	g, clock := newTestGuard(0, &running, &fired)

	clock.advance(24 * time.Hour)
	g.Check(context.Background())
	assert.Equal(t, 0, fired)
}
