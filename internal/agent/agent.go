// Package agent keeps a client-side belief of the user's timer state in
// sync with the server. Push events are the primary mechanism, a local
// one-second tick animates the display between them, and a backoff-driven
// pull of the current entry covers every window where push is unavailable.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"timetrack/internal/model"
)

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

type Config struct {
	PollFloor      time.Duration
	PollCeiling    time.Duration
	PollFactor     float64
	ResyncInterval time.Duration
	TickInterval   time.Duration
	AwayThreshold  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollFloor:      5 * time.Second,
		PollCeiling:    60 * time.Second,
		PollFactor:     1.3,
		ResyncInterval: 30 * time.Second,
		TickInterval:   time.Second,
		AwayThreshold:  model.DefaultIdleTimeoutSeconds * time.Second,
	}
}

// Belief is the local guess of the server's timer state. ElapsedSeconds is
// display-only and is periodically recomputed from the server start time.
type Belief struct {
	IsRunning      bool
	Entry          *model.TimeEntry
	ElapsedSeconds int
}

func (b Belief) Earnings() float64 {
	if b.Entry == nil {
		return 0
	}
	return float64(b.ElapsedSeconds) / 3600 * b.Entry.HourlyRateSnapshot
}

type UpdateKind int

const (
	UpdateSnapshot UpdateKind = iota
	UpdateConn
	UpdateNotice
)

// Update is the tagged event a UI layer consumes. Notices distinguish "your
// timer was stopped for you" from "your action failed".
type Update struct {
	Kind   UpdateKind
	Belief Belief
	Conn   ConnState
	Notice string
}

// API is the pull/stop surface the agent needs from the backend.
type API interface {
	Current(ctx context.Context) (*model.TimeEntry, error)
	Stop(ctx context.Context, entryID string) (*model.TimeEntry, error)
}

type Agent struct {
	api    API
	source EventSource
	cfg    Config
	now    func() time.Time

	mu           sync.Mutex
	belief       Belief
	conn         ConnState
	foreground   bool
	backgroundAt time.Time
	closed       bool
	runCtx       context.Context
	cancel       context.CancelFunc

	updates chan Update
}

func New(api API, source EventSource, cfg Config) *Agent {
	if cfg.PollFactor <= 1 {
		cfg.PollFactor = 1.3
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Agent{
		api:        api,
		source:     source,
		cfg:        cfg,
		now:        time.Now,
		foreground: true,
		updates:    make(chan Update, 64),
	}
}

// Updates delivers state changes to the UI layer. Sends never block the
// sync loop; a slow consumer loses intermediate snapshots, not correctness.
func (a *Agent) Updates() <-chan Update {
	return a.updates
}

func (a *Agent) Belief() Belief {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.belief
}

func (a *Agent) ConnState() ConnState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

// Run drives the agent until ctx is cancelled or Close is called. It owns
// the connection lifecycle; reconciliation happens on this goroutine.
func (a *Agent) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.runCtx = ctx
	a.cancel = cancel
	a.mu.Unlock()
	defer cancel()

	// The display tick is gated by the belief alone, not by the connection
	// state: a believed-running timer keeps counting while disconnected.
	go a.tickLoop(ctx)

	backoff := a.cfg.PollFloor
	first := true

	for ctx.Err() == nil {
		if first {
			a.setConn(StateConnecting)
		} else {
			a.setConn(StateReconnecting)
		}

		events, err := a.source.Connect(ctx)
		if err != nil {
			if errors.Is(err, ErrAuth) {
				// Retrying the handshake with the same credential cannot
				// succeed; fall back to pulling until restart or refresh.
				a.setConn(StateFailed)
				a.pollUntilDone(ctx)
				return
			}
			a.pull(ctx)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, a.cfg)
			continue
		}

		backoff = a.cfg.PollFloor
		first = false
		a.setConn(StateConnected)

		// Missed events are never replayed; recover via pull on (re)connect.
		a.pull(ctx)
		a.consume(ctx, events)
	}
}

// Close tears the agent down: all timers stop and in-flight completions
// become no-ops. Safe to call more than once.
func (a *Agent) Close() {
	a.mu.Lock()
	a.closed = true
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SetForeground records visibility transitions. Regaining the foreground
// after more than the away threshold is treated as an idle stop request;
// shorter absences get a plain resync.
func (a *Agent) SetForeground(ctx context.Context, foreground bool) {
	a.mu.Lock()
	was := a.foreground
	a.foreground = foreground
	now := a.now()
	if !foreground && was {
		a.backgroundAt = now
	}
	var away time.Duration
	if foreground && !was {
		away = now.Sub(a.backgroundAt)
	}
	running := a.belief.IsRunning
	var entryID string
	if a.belief.Entry != nil {
		entryID = a.belief.Entry.ID
	}
	a.mu.Unlock()

	if !foreground || was {
		return
	}
	if running && entryID != "" && away >= a.cfg.AwayThreshold {
		a.StopForIdle(ctx, entryID, away)
		return
	}
	a.pull(ctx)
}

// StopForIdle issues the single authoritative stop for an idle episode and
// surfaces a notice that the timer was stopped on the user's behalf.
func (a *Agent) StopForIdle(ctx context.Context, entryID string, idleFor time.Duration) {
	entry, err := a.api.Stop(ctx, entryID)
	if err != nil {
		// Another device may have stopped it first; reconcile via pull
		// rather than retrying in a loop.
		log.Printf("idle stop failed: %v", err)
		a.pull(ctx)
		return
	}

	a.adopt(entry)
	a.emit(Update{
		Kind:   UpdateNotice,
		Notice: fmt.Sprintf("timer stopped after %s of inactivity", idleFor.Round(time.Second)),
		Belief: a.Belief(),
	})
}

func (a *Agent) consume(ctx context.Context, events <-chan model.Event) {
	resync := time.NewTicker(a.cfg.ResyncInterval)
	defer resync.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			a.applyEvent(event)
		case <-resync.C:
			a.pull(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.tick()
		case <-ctx.Done():
			return
		}
	}
}

// pollUntilDone is the indefinite pull fallback used once push is gone for
// good (failed credential). Staleness is bounded by the poll ceiling.
func (a *Agent) pollUntilDone(ctx context.Context) {
	interval := a.cfg.PollFloor
	for {
		if !sleep(ctx, interval) {
			return
		}
		a.pull(ctx)
		interval = nextBackoff(interval, a.cfg)
	}
}

// pull re-derives the belief from the server's answer to "what is running".
func (a *Agent) pull(ctx context.Context) {
	entry, err := a.api.Current(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ErrAuth):
			a.setConn(StateFailed)
		case IsTransient(err):
			log.Printf("resync pull failed: %v", err)
		default:
			// Terminal for this attempt; tell the user instead of quietly
			// waiting for the next cycle to fail the same way.
			log.Printf("resync pull rejected: %v", err)
			a.emit(Update{
				Kind:   UpdateNotice,
				Notice: "could not refresh timer state: " + err.Error(),
				Belief: a.Belief(),
			})
		}
		return
	}
	a.adopt(entry)
}

// applyEvent reconciles one push event. Reconciliation is keyed by entry id
// and idempotent: applying the same event twice leaves the same state.
func (a *Agent) applyEvent(event model.Event) {
	switch event.Name {
	case model.EventTimeEntryStarted, model.EventTimeEntryCreated, model.EventTimeEntryUpdated, model.EventTimeEntryStopped:
		entry, err := event.TimeEntry()
		if err != nil {
			log.Printf("invalid %s event: %v", event.Name, err)
			return
		}
		if entry.IsRunning {
			a.adopt(entry)
			return
		}
		a.reconcileStopped(entry)
	case model.EventTimeEntryDeleted:
		id, err := event.DeletedID()
		if err != nil {
			log.Printf("invalid %s event: %v", event.Name, err)
			return
		}
		a.reconcileDeleted(id)
	default:
		// project-* and task-* events do not affect the timer belief.
	}
}

// adopt replaces the belief with the server's truth. Elapsed time is always
// recomputed from the server start time, correcting local tick drift.
func (a *Agent) adopt(entry *model.TimeEntry) {
	a.mu.Lock()
	changed := false
	if entry == nil {
		if a.belief.IsRunning || a.belief.Entry != nil {
			a.belief = Belief{}
			changed = true
		}
	} else {
		elapsed := entry.Elapsed(a.now())
		if !a.belief.sameAs(entry) || a.belief.ElapsedSeconds != elapsed {
			a.belief = Belief{
				IsRunning:      entry.IsRunning,
				Entry:          entry,
				ElapsedSeconds: elapsed,
			}
			changed = true
		}
	}
	belief := a.belief
	a.mu.Unlock()

	if changed {
		a.emit(Update{Kind: UpdateSnapshot, Belief: belief})
	}
}

func (a *Agent) reconcileStopped(entry *model.TimeEntry) {
	a.mu.Lock()
	if a.belief.Entry == nil || a.belief.Entry.ID != entry.ID {
		a.mu.Unlock()
		return
	}
	a.belief = Belief{
		IsRunning:      false,
		Entry:          entry,
		ElapsedSeconds: entry.DurationSeconds,
	}
	belief := a.belief
	a.mu.Unlock()

	a.emit(Update{Kind: UpdateSnapshot, Belief: belief})
}

func (a *Agent) reconcileDeleted(id string) {
	a.mu.Lock()
	if a.belief.Entry == nil || a.belief.Entry.ID != id {
		a.mu.Unlock()
		return
	}
	a.belief = Belief{}
	belief := a.belief
	a.mu.Unlock()

	a.emit(Update{Kind: UpdateSnapshot, Belief: belief})
}

// tick advances the display clock one second while believed running. Never
// authoritative; the resync pull corrects any drift.
func (a *Agent) tick() {
	a.mu.Lock()
	if !a.belief.IsRunning {
		a.mu.Unlock()
		return
	}
	a.belief.ElapsedSeconds++
	belief := a.belief
	a.mu.Unlock()

	a.emit(Update{Kind: UpdateSnapshot, Belief: belief})
}

func (a *Agent) setConn(state ConnState) {
	a.mu.Lock()
	if a.conn == state {
		a.mu.Unlock()
		return
	}
	a.conn = state
	a.mu.Unlock()

	a.emit(Update{Kind: UpdateConn, Conn: state, Belief: a.Belief()})
}

func (a *Agent) emit(update Update) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return
	}

	select {
	case a.updates <- update:
	default:
	}
}

func (b Belief) sameAs(entry *model.TimeEntry) bool {
	return b.Entry != nil &&
		b.Entry.ID == entry.ID &&
		b.IsRunning == entry.IsRunning &&
		b.Entry.UpdatedAt.Equal(entry.UpdatedAt)
}

func nextBackoff(current time.Duration, cfg Config) time.Duration {
	next := time.Duration(float64(current) * cfg.PollFactor)
	if next > cfg.PollCeiling {
		return cfg.PollCeiling
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
