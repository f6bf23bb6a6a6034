package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCost(t *testing.T) {
	assert.InDelta(t, 1.0, Cost(60, 1), 1e-9)
	assert.InDelta(t, 10.0, Cost(60, 10), 1e-9)
	// Second 61 is pro-rated, not rounded up to two minutes.
	assert.InDelta(t, 61.0/60*10, Cost(61, 10), 1e-9)
	// 125s at 12/min is exactly 25.0, neither floored nor ceiled.
	assert.InDelta(t, 25.0, Cost(125, 12), 1e-9)
	assert.Zero(t, Cost(0, 10))
	assert.Zero(t, Cost(-5, 10))
}

func TestAccrueMonotonic(t *testing.T) {
	s := NewSession("s1", NewSessionRequest("c1", "a1", ModalityChat, 10))
	s.State = StateActive
	connected := time.Now().Add(-10 * time.Second)
	s.ConnectedAt = &connected

	s.Accrue(time.Now())
	first := s.AccruedSeconds
	require.Greater(t, first, 9.0)

	// A clock reading earlier than the last one never rolls back the
	// counter.
	s.Accrue(connected.Add(time.Second))
	assert.Equal(t, first, s.AccruedSeconds)

	s.Accrue(time.Now().Add(time.Second))
	assert.Greater(t, s.AccruedSeconds, first)
}

func TestAccrueOnlyWhileActive(t *testing.T) {
	s := NewSession("s1", NewSessionRequest("c1", "a1", ModalityChat, 10))
	connected := time.Now().Add(-time.Minute)
	s.ConnectedAt = &connected

	s.State = StateEnding
	s.Accrue(time.Now())
	assert.Zero(t, s.AccruedSeconds)

	s.State = StateActive
	s.Accrue(time.Now())
	frozen := s.AccruedSeconds
	require.NotZero(t, frozen)

	s.State = StateSummary
	s.Accrue(time.Now().Add(time.Hour))
	assert.Equal(t, frozen, s.AccruedSeconds)
}

func TestValidateMinimum(t *testing.T) {
	b := NewBillingEngine(BillingPolicy{MinimumFloorMinutes: 5, TickInterval: time.Second})

	require.NoError(t, b.ValidateMinimum(50, 10))
	require.NoError(t, b.ValidateMinimum(50.0, 10))

	err := b.ValidateMinimum(49.99, 10)
	require.Error(t, err)
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.InDelta(t, 50.0, insufficient.MinimumRequired, 1e-9)
	assert.InDelta(t, 0.01, insufficient.Shortfall, 1e-6)
}

func TestFinalizeIdempotent(t *testing.T) {
	b := NewBillingEngine(DefaultBillingPolicy())
	s := NewSession("s1", NewSessionRequest("c1", "a1", ModalityChat, 10))
	s.State = StateActive
	connected := time.Now().Add(-90 * time.Second)
	s.ConnectedAt = &connected
	s.Accrue(time.Now())

	first := b.Finalize(s)
	assert.Equal(t, "s1", first.SessionID)
	assert.InDelta(t, s.RunningCost(), first.Amount, 1e-9)

	// More accrual after finalize must not change the settled amount.
	s.Accrue(time.Now().Add(time.Hour))
	second := b.Finalize(s)
	assert.Equal(t, first, second)
}

func TestProjectExhaustion(t *testing.T) {
	b := NewBillingEngine(DefaultBillingPolicy())
	s := NewSession("s1", NewSessionRequest("c1", "a1", ModalityChat, 60))
	s.State = StateActive
	connected := time.Now()
	s.ConnectedAt = &connected

	// Rate 60/min is 1/sec: a balance of 30 lasts 30 seconds.
	left := b.ProjectExhaustion(s, 30)
	assert.InDelta(t, 30.0, left.Seconds(), 1.0)

	s.AccruedSeconds = 30
	assert.Equal(t, time.Duration(0), b.ProjectExhaustion(s, 30))
	assert.Equal(t, time.Duration(0), b.ProjectExhaustion(s, 10))
}
