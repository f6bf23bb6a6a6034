package usecase

import (
	"context"
	"time"

	"github.com/nakshatratalks/consult-engine/server/domain"
)

// Ledger is the external balance service. The engine reads balance at
// admission and issues exactly one debit per session at finalize,
// always keyed by the session id so retries never double-charge.
type Ledger interface {
	GetBalance(ctx context.Context, customerID string) (float64, error)
	Debit(ctx context.Context, customerID string, amount float64, idempotencyKey string) (float64, error)
}

// NotificationSink receives warning, termination, and summary events
// for presentation. Fire-and-forget: the engine never waits on it.
type NotificationSink interface {
	Notify(event NotificationEvent)
}

type NotificationEvent struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	CustomerID string    `json:"customer_id"`
	AdvisorID  string    `json:"advisor_id"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

const (
	NotifyInactivityWarning  = "inactivity_warning"
	NotifyLowBalanceWarning  = "low_balance_warning"
	NotifyContinuationPrompt = "continuation_prompt"
	NotifySessionEnded       = "session_ended"
	NotifySummaryReady       = "summary_ready"
)

// Repository persists sessions, summaries, ratings, advisor duration
// observations, and the settlement retry queue.
type Repository interface {
	SaveSession(view domain.SessionView) error
	GetSessionView(sessionID string) (domain.SessionView, error)

	SaveSummary(summary domain.SessionSummary) error
	GetSummary(sessionID string) (domain.SessionSummary, error)
	MarkSettled(sessionID string) error

	SaveRating(rating domain.Rating) error
	GetRating(sessionID string) (domain.Rating, error)

	RecordAdvisorDuration(advisorID string, seconds float64) error
	AdvisorAverageDuration(advisorID string) (avgSeconds float64, samples int, err error)

	EnqueueSettlement(s Settlement) error
	PendingSettlements() ([]Settlement, error)
	DeleteSettlement(sessionID string) error
}

// Settlement is a ledger debit that could not be applied at finalize
// time and is retried until it lands.
type Settlement struct {
	SessionID  string
	CustomerID string
	Amount     float64
	Attempts   int
	EnqueuedAt time.Time
}

// Callbacks is the surface the UI layer subscribes to. Injected as an
// explicit dependency, never a process-wide singleton, so the engine
// runs without a UI runtime. Any field may be nil.
type Callbacks struct {
	OnStateChanged func(sessionID string, state domain.SessionState, reason domain.EndReason)
	OnCostUpdated  func(update domain.CostUpdate)
	OnQueueUpdated func(update domain.QueueUpdate)
	OnSummaryReady func(summary domain.SessionSummary)
}
