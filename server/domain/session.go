package domain

import (
	"time"
)

// Session is the central entity of a consultation. Its fields are
// mutated only by the lifecycle engine's owner goroutine for that
// session; every other component sees read-only snapshots.
type Session struct {
	ID             string
	Request        SessionRequest
	State          SessionState
	ConnectedAt    *time.Time
	AccruedSeconds float64
	LastActivityAt time.Time
	EndReason      EndReason
	CreatedAt      time.Time
}

func NewSession(id string, req SessionRequest) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		Request:        req,
		State:          StateRequesting,
		LastActivityAt: now,
		CreatedAt:      now,
	}
}

// RunningCost is derived, never stored: pro-rated per second so a
// session ended at second 61 is not billed two full minutes.
func (s *Session) RunningCost() float64 {
	return Cost(s.AccruedSeconds, s.Request.RatePerMin)
}

// Accrue advances the accrued-seconds counter from the connected-at
// wall clock. Accrued time is monotonic and frozen once the session
// leaves Active.
func (s *Session) Accrue(now time.Time) {
	if s.State != StateActive || s.ConnectedAt == nil {
		return
	}
	elapsed := now.Sub(*s.ConnectedAt).Seconds()
	if elapsed > s.AccruedSeconds {
		s.AccruedSeconds = elapsed
	}
}

func (s *Session) MarkActivity(now time.Time) {
	if now.After(s.LastActivityAt) {
		s.LastActivityAt = now
	}
}

// Cost converts accrued seconds at a per-minute rate into owed cost.
func Cost(accruedSeconds, ratePerMin float64) float64 {
	if accruedSeconds < 0 {
		return 0
	}
	return accruedSeconds / 60 * ratePerMin
}

// SessionView is an immutable snapshot handed to observers outside the
// owner goroutine.
type SessionView struct {
	ID             string     `json:"id"`
	CustomerID     string     `json:"customer_id"`
	AdvisorID      string     `json:"advisor_id"`
	Modality       Modality   `json:"modality"`
	RatePerMin     float64    `json:"rate_per_min"`
	State          string     `json:"state"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
	AccruedSeconds float64    `json:"accrued_seconds"`
	RunningCost    float64    `json:"running_cost"`
	EndReason      string     `json:"end_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (s *Session) View() SessionView {
	v := SessionView{
		ID:             s.ID,
		CustomerID:     s.Request.CustomerID,
		AdvisorID:      s.Request.AdvisorID,
		Modality:       s.Request.Modality,
		RatePerMin:     s.Request.RatePerMin,
		State:          s.State.String(),
		AccruedSeconds: s.AccruedSeconds,
		RunningCost:    s.RunningCost(),
		CreatedAt:      s.CreatedAt,
	}
	if s.ConnectedAt != nil {
		t := *s.ConnectedAt
		v.ConnectedAt = &t
	}
	if s.EndReason != ReasonNone {
		v.EndReason = s.EndReason.String()
	}
	return v
}
