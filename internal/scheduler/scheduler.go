// Package scheduler drives the market-session state machine on a 60-second
// cron tick. It is the only component allowed to change the session state;
// the ingest supervisor merely obeys its open/close commands.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"marketpulse/internal/markethours"
	"marketpulse/internal/model"
)

// Command tells the ingest supervisor what to do after a tick.
type Command int

const (
	CmdNoop Command = iota
	CmdOpen
	CmdClose
)

func (c Command) String() string {
	switch c {
	case CmdOpen:
		return "open"
	case CmdClose:
		return "close"
	default:
		return "noop"
	}
}

// Feed is the scheduler's view of the ingest supervisor.
type Feed interface {
	Open()
	Close()
}

// Scheduler computes the canonical session state on the IST wall clock and
// issues feed commands at the 08:50 auto-start / 15:35 auto-stop boundaries.
// When disabled it pins the session to MARKET_OPEN for development.
type Scheduler struct {
	cal     *markethours.Calendar
	enabled bool

	mu         sync.RWMutex
	state      model.SessionState
	lastChange time.Time
	feedOpen   bool
	seeded     bool

	// OnTransition is called when the session state changes (optional).
	OnTransition func(from, to model.SessionState)
}

// New creates a scheduler over the given holiday calendar.
func New(cal *markethours.Calendar, enabled bool) *Scheduler {
	return &Scheduler{cal: cal, enabled: enabled, state: model.SessionClosed}
}

// Tick computes the session for now and the feed command to issue.
// The state is a pure function of (now, holiday table); the command compares
// the desired feed window against the last issued command so repeated ticks
// inside a window return CmdNoop.
func (s *Scheduler) Tick(now time.Time) (model.Session, Command) {
	if !s.enabled {
		s.mu.Lock()
		s.state = model.SessionMarketOpen
		s.mu.Unlock()
		return model.Session{State: model.SessionMarketOpen, NextChangeTS: now.Add(24 * time.Hour)}, CmdNoop
	}

	state := markethours.StateAt(now, s.cal)
	wantFeed := markethours.FeedShouldRun(now, s.cal)

	s.mu.Lock()
	prev := s.state
	if state != prev || !s.seeded {
		s.state = state
		s.lastChange = now
	}
	cmd := CmdNoop
	switch {
	case wantFeed && (!s.feedOpen || !s.seeded):
		cmd = CmdOpen
		s.feedOpen = true
	case !wantFeed && (s.feedOpen || !s.seeded):
		cmd = CmdClose
		s.feedOpen = false
	}
	s.seeded = true
	last := s.lastChange
	s.mu.Unlock()

	if state != prev && s.OnTransition != nil {
		s.OnTransition(prev, state)
	}

	return model.Session{
		State:        state,
		LastChangeTS: last,
		NextChangeTS: markethours.NextTransition(now, s.cal),
	}, cmd
}

// Session returns the last computed session view.
func (s *Scheduler) Session(now time.Time) model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.Session{
		State:        s.state,
		LastChangeTS: s.lastChange,
		NextChangeTS: markethours.NextTransition(now, s.cal),
	}
}

// State returns the current session state.
func (s *Scheduler) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Run registers the 60s tick and an optional holiday reload job on the cron
// runner, dispatches feed commands, and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context, feed Feed, holidayFile string) error {
	c := cron.New(cron.WithLocation(markethours.IST))

	tick := func() {
		sess, cmd := s.Tick(time.Now())
		switch cmd {
		case CmdOpen:
			log.Printf("[scheduler] session=%s — opening feed", sess.State)
			feed.Open()
		case CmdClose:
			log.Printf("[scheduler] session=%s — closing feed", sess.State)
			feed.Close()
		}
	}

	if _, err := c.AddFunc("@every 1m", tick); err != nil {
		return err
	}
	if holidayFile != "" {
		if _, err := c.AddFunc("@every 6h", func() {
			if err := s.cal.Reload(holidayFile); err != nil {
				log.Printf("[scheduler] holiday reload failed: %v", err)
			} else {
				log.Printf("[scheduler] holiday table reloaded (%d dates)", s.cal.Len())
			}
		}); err != nil {
			return err
		}
	}

	tick() // immediate first evaluation; cron fires the rest
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}
