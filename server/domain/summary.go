package domain

import "time"

// SessionSummary is an immutable snapshot taken at the Ending
// transition. RemainingBalance is whatever the ledger reported at
// finalize time; a negative value means the ledger was unreachable and
// the balance is unknown.
type SessionSummary struct {
	SessionID        string    `json:"session_id"`
	CustomerID       string    `json:"customer_id"`
	AdvisorID        string    `json:"advisor_id"`
	Modality         Modality  `json:"modality"`
	DurationSeconds  float64   `json:"duration_seconds"`
	TotalCost        float64   `json:"total_cost"`
	RemainingBalance float64   `json:"remaining_balance"`
	EndReason        string    `json:"end_reason"`
	EndedAt          time.Time `json:"ended_at"`
	Settled          bool      `json:"settled"`
}

// FinalCost is the result of the one-time billing finalization. Repeat
// calls for the same session id return the identical value.
type FinalCost struct {
	SessionID       string  `json:"session_id"`
	DurationSeconds float64 `json:"duration_seconds"`
	Amount          float64 `json:"amount"`
}

// Rating is the optional post-session feedback. At most one per
// session; a second submission is rejected, never overwritten.
type Rating struct {
	SessionID string    `json:"session_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (r Rating) IsValid() bool {
	return r.SessionID != "" && r.Score >= 1 && r.Score <= 5
}
