package domain

import "time"

// QueueTicket is owned exclusively by the queue coordinator. Position
// is 1-based and recomputed whenever a ticket ahead leaves; FIFO order
// is never reordered by priority.
type QueueTicket struct {
	ID            string
	SessionID     string
	AdvisorID     string
	Position      int
	EstimatedWait time.Duration
	EnrolledAt    time.Time
	HoldExpiresAt *time.Time
}

func (t *QueueTicket) OnHold() bool {
	return t.HoldExpiresAt != nil
}

// QueueUpdate is pushed to the lifecycle engine whenever a ticket's
// position or wait estimate changes.
type QueueUpdate struct {
	SessionID     string        `json:"session_id"`
	Position      int           `json:"position"`
	EstimatedWait time.Duration `json:"estimated_wait"`
}
