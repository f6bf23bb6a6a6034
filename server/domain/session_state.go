package domain

// SessionState is a strict forward walk: a session never revisits an
// earlier non-terminal state.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRequesting
	StateQueued
	StateConnecting
	StateActive
	StateEnding
	StateSummary
	StateCancelled
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateQueued:
		return "queued"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateSummary:
		return "summary"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s SessionState) IsTerminal() bool {
	return s == StateSummary || s == StateCancelled || s == StateFailed
}

// CanTransition reports whether next is a legal successor of s.
func (s SessionState) CanTransition(next SessionState) bool {
	switch s {
	case StateIdle:
		return next == StateRequesting
	case StateRequesting:
		return next == StateQueued || next == StateConnecting ||
			next == StateCancelled || next == StateFailed
	case StateQueued:
		return next == StateConnecting || next == StateCancelled || next == StateFailed
	case StateConnecting:
		return next == StateActive || next == StateCancelled || next == StateFailed
	case StateActive:
		return next == StateEnding
	case StateEnding:
		return next == StateSummary
	default:
		return false
	}
}
