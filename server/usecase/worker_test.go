package usecase

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakshatratalks/consult-engine/server/domain"
)

type nopRepo struct{}

func (nopRepo) SaveSession(domain.SessionView) error { return nil }
func (nopRepo) GetSessionView(string) (domain.SessionView, error) {
	return domain.SessionView{}, domain.ErrSessionNotFound
}
func (nopRepo) SaveSummary(domain.SessionSummary) error { return nil }
func (nopRepo) GetSummary(string) (domain.SessionSummary, error) {
	return domain.SessionSummary{}, domain.ErrSummaryNotFound
}
func (nopRepo) MarkSettled(string) error       { return nil }
func (nopRepo) SaveRating(domain.Rating) error { return nil }
func (nopRepo) GetRating(string) (domain.Rating, error) {
	return domain.Rating{}, domain.ErrRatingNotFound
}
func (nopRepo) RecordAdvisorDuration(string, float64) error         { return nil }
func (nopRepo) AdvisorAverageDuration(string) (float64, int, error) { return 0, 0, nil }
func (nopRepo) EnqueueSettlement(Settlement) error                  { return nil }
func (nopRepo) PendingSettlements() ([]Settlement, error)           { return nil, nil }
func (nopRepo) DeleteSettlement(string) error                       { return nil }

type nopLedger struct{}

func (nopLedger) GetBalance(context.Context, string) (float64, error) { return 500, nil }
func (nopLedger) Debit(context.Context, string, float64, string) (float64, error) {
	return 500, nil
}

func bareEngine() *Engine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := logrus.NewEntry(logger)
	hub := domain.NewChannelHub()
	adapter := domain.NewChannelAdapter(hub, domain.ChannelPolicy{
		ConnectTimeout:    time.Second,
		ReconnectAttempts: 1,
		ReconnectBackoff:  time.Millisecond,
	}, log)
	cfg := Config{
		Billing: domain.BillingPolicy{MinimumFloorMinutes: 5, TickInterval: time.Second},
		Queue:   domain.QueuePolicy{HoldWindow: time.Hour, DefaultWaitPerPosition: time.Minute},
		Lifecycle: LifecyclePolicy{
			InactivityWarning:    time.Hour,
			InactivityTimeout:    2 * time.Hour,
			ContinuationInterval: time.Hour,
			LowBalanceWarning:    time.Second,
			LedgerTimeout:        time.Second,
		},
	}
	return NewEngine(cfg, adapter, nopLedger{}, nil, nopRepo{}, Callbacks{}, log)
}

// A promotion can lose the advisor to a racing direct admit between
// the availability signal and the worker's reserve. The session must
// stay queued at its position, not start a connect against an advisor
// someone else holds.
func TestPromotionLostReserveKeepsTicketWaiting(t *testing.T) {
	e := bareEngine()
	s := domain.NewSession("s2", domain.NewSessionRequest("c2", "a1", domain.ModalityChat, 10))
	s.State = domain.StateQueued
	w := newWorker(e, s, 500)

	e.presence.SetBusy("a1")
	e.queue.Enroll("s2", "a1")

	// The occupying session ends; the head ticket goes on hold.
	e.presence.SetFree("a1")
	ticket, ok := e.queue.Ticket("s2")
	require.True(t, ok)
	require.True(t, ticket.OnHold())

	// A direct admit claims the advisor before this worker reserves.
	require.True(t, e.presence.TryReserve("a1"))

	w.handleEvent(event{kind: evPromoted})

	assert.Equal(t, domain.StateQueued, s.State)
	ticket, ok = e.queue.Ticket("s2")
	require.True(t, ok)
	assert.False(t, ticket.OnHold())
	assert.Equal(t, 1, ticket.Position)

	// The next availability signal promotes the same ticket again.
	e.presence.SetFree("a1")
	ticket, ok = e.queue.Ticket("s2")
	require.True(t, ok)
	assert.True(t, ticket.OnHold())
}
