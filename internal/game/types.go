package game

import "bargetrader/internal/session"

// Re-export clock states for convenience
type State = session.State

const (
	StatePending = session.StatePending
	StateRunning = session.StateRunning
	StateEnded   = session.StateEnded
)
