// Package session tracks a round's countdown and fires the round-end hooks.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State of a round's clock.
type State int

const (
	StatePending State = iota // created, countdown not started
	StateRunning              // trading open
	StateEnded                // countdown expired or ended explicitly
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StateEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StatePending, StateRunning, StateEnded} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Reason records how a clock reached StateEnded.
type Reason int

const (
	ReasonExpired Reason = iota
	ReasonStopped
)

func (r Reason) String() string {
	if r == ReasonExpired {
		return "expired"
	}
	return "stopped"
}

// Clock moves Pending -> Running -> Ended. The move to Ended happens once no
// matter how many goroutines observe expiry, and only that move runs the
// OnEnd hooks.
type Clock struct {
	mu        sync.Mutex
	state     State
	duration  time.Duration
	startedAt time.Time
	endedAt   time.Time
	reason    Reason
	hooks     []func(Reason)
	done      chan struct{}

	now func() time.Time
}

func NewClock(duration time.Duration, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{
		duration: duration,
		done:     make(chan struct{}),
		now:      now,
	}
}

// Start begins the countdown.
func (c *Clock) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePending {
		return fmt.Errorf("cannot start clock in state %s", c.state)
	}
	c.state = StateRunning
	c.startedAt = c.now()
	return nil
}

// OnEnd registers fn to run when the clock ends. Hooks run in registration
// order on the goroutine that ended the clock.
func (c *Clock) OnEnd(fn func(Reason)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Remaining is the time left, clamped at zero. A pending clock reports the
// full duration. Observing zero ends the clock.
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	var left time.Duration
	expired := false
	switch c.state {
	case StatePending:
		left = c.duration
	case StateRunning:
		left = c.duration - c.now().Sub(c.startedAt)
		if left <= 0 {
			left = 0
			expired = true
		}
	}
	c.mu.Unlock()

	if expired {
		c.end(ReasonExpired)
	}
	return left
}

// Open reports whether the clock is running with time left. Unlike
// Remaining it never ends the clock, so it is safe to call while holding
// locks an OnEnd hook might take.
func (c *Clock) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateRunning && c.now().Sub(c.startedAt) < c.duration
}

// State reports the current state after checking for expiry.
func (c *Clock) State() State {
	c.Remaining()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Clock) Ended() bool {
	return c.State() == StateEnded
}

// End stops the clock early. It reports whether this call ended it.
func (c *Clock) End() bool {
	return c.end(ReasonStopped)
}

func (c *Clock) end(reason Reason) bool {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return false
	}
	c.state = StateEnded
	c.endedAt = c.now()
	c.reason = reason
	hooks := c.hooks
	c.hooks = nil
	close(c.done)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(reason)
	}
	return true
}

// Done is closed once the clock has ended.
func (c *Clock) Done() <-chan struct{} {
	return c.done
}

func (c *Clock) Duration() time.Duration {
	return c.duration
}

func (c *Clock) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

func (c *Clock) EndedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endedAt
}

func (c *Clock) Reason() Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Run polls for expiry every tick so the round ends even when nobody asks.
// It returns when the clock ends or ctx is cancelled.
func (c *Clock) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.Remaining()
		}
	}
}
