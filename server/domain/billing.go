package domain

import (
	"sync"
	"time"
)

// BillingPolicy carries the tunables of the accrual engine.
type BillingPolicy struct {
	// MinimumFloorMinutes is how many minutes at the session's rate a
	// customer must be able to afford before a connect is allowed.
	// Blocks connect/immediate-disconnect thrashing.
	MinimumFloorMinutes float64
	// TickInterval is the accrual cadence while a session is Active.
	TickInterval time.Duration
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		MinimumFloorMinutes: 5,
		TickInterval:        time.Second,
	}
}

// CostUpdate is emitted on every accrual tick.
type CostUpdate struct {
	SessionID      string  `json:"session_id"`
	AccruedSeconds float64 `json:"accrued_seconds"`
	Cost           float64 `json:"cost"`
}

// BillingEngine computes owed cost from elapsed connected time. It
// never terminates a session itself: it reports projections and leaves
// termination authority with the lifecycle engine.
type BillingEngine struct {
	policy BillingPolicy

	mu        sync.Mutex
	finalized map[string]FinalCost
}

func NewBillingEngine(policy BillingPolicy) *BillingEngine {
	return &BillingEngine{
		policy:    policy,
		finalized: make(map[string]FinalCost),
	}
}

func (b *BillingEngine) Policy() BillingPolicy {
	return b.policy
}

// ValidateMinimum admits a session only if the balance covers the
// minimum-session floor at the given rate.
func (b *BillingEngine) ValidateMinimum(balance, ratePerMin float64) error {
	minimum := ratePerMin * b.policy.MinimumFloorMinutes
	if balance < minimum {
		return &InsufficientBalanceError{
			Shortfall:       minimum - balance,
			MinimumRequired: minimum,
		}
	}
	return nil
}

// Tick advances the session's accrued time to now and reports the
// running cost. Ticks may coalesce under load, so a single tick can
// cover more than one cadence interval.
func (b *BillingEngine) Tick(s *Session, now time.Time) CostUpdate {
	s.Accrue(now)
	return CostUpdate{
		SessionID:      s.ID,
		AccruedSeconds: s.AccruedSeconds,
		Cost:           s.RunningCost(),
	}
}

// ProjectExhaustion reports how long the session can keep accruing
// before the balance reaches zero. Zero means the balance is already
// spent.
func (b *BillingEngine) ProjectExhaustion(s *Session, balance float64) time.Duration {
	remaining := balance - s.RunningCost()
	if remaining <= 0 {
		return 0
	}
	if s.Request.RatePerMin <= 0 {
		return time.Duration(1<<63 - 1)
	}
	seconds := remaining / s.Request.RatePerMin * 60
	return time.Duration(seconds * float64(time.Second))
}

// Finalize settles the session's cost exactly once. Repeat calls with
// the same session id return the cached result without re-accruing,
// so a caller retrying against the external ledger stays safe.
func (b *BillingEngine) Finalize(s *Session) FinalCost {
	b.mu.Lock()
	defer b.mu.Unlock()

	if fc, ok := b.finalized[s.ID]; ok {
		return fc
	}
	fc := FinalCost{
		SessionID:       s.ID,
		DurationSeconds: s.AccruedSeconds,
		Amount:          s.RunningCost(),
	}
	b.finalized[s.ID] = fc
	return fc
}
