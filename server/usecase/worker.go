package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nakshatratalks/consult-engine/server/domain"
)

type startMode int

const (
	startConnect startMode = iota
	startQueued
)

type eventKind int

const (
	evCancel eventKind = iota
	evEnd
	evBackground
	evShutdown
	evContinue
	evSend
	evPromoted
	evDropped
	evJoinResult
)

type event struct {
	kind   eventKind
	reason domain.EndReason
	text   string
	reply  chan error
	handle *domain.ChannelHandle
	err    error
}

// worker is the single owner of one session's state. Every producer
// (user commands, queue signals, channel events, billing ticks, the
// two lifecycle timers) lands in this goroutine, so the first terminal
// trigger to be dequeued wins and no transition ever races.
type worker struct {
	e       *Engine
	s       *domain.Session
	balance float64

	inbox   chan event
	done    chan struct{}
	postMu  sync.Mutex
	stopped bool

	handle *domain.ChannelHandle
	events <-chan domain.ChannelEvent

	billingTick  *time.Ticker
	inactivity   *time.Timer
	continuation *time.Ticker

	warned           bool
	lowBalanceWarned bool
	reserved         bool
}

func newWorker(e *Engine, s *domain.Session, balance float64) *worker {
	return &worker{
		e:       e,
		s:       s,
		balance: balance,
		inbox:   make(chan event, 16),
		done:    make(chan struct{}),
	}
}

// post hands an event to the owner goroutine. Sends happen under
// postMu and the final drain runs after stopped is set under the same
// lock, so every posted event is either handled or rejected; a reply
// channel is never stranded.
func (w *worker) post(ev event) {
	w.postMu.Lock()
	if w.stopped {
		w.postMu.Unlock()
		w.reject(ev)
		return
	}
	select {
	case w.inbox <- ev:
		w.postMu.Unlock()
	case <-w.done:
		w.postMu.Unlock()
		w.reject(ev)
	}
}

func (w *worker) reject(ev event) {
	if ev.reply != nil {
		ev.reply <- domain.ErrSessionNotFound
	}
	if ev.kind == evJoinResult && ev.handle != nil {
		ev.handle.Leave()
	}
}

func (w *worker) run(mode startMode) {
	defer w.e.release(w)
	defer w.stopTimers()

	switch mode {
	case startConnect:
		w.reserved = true
		w.transition(domain.StateConnecting, domain.ReasonNone)
		w.beginJoin()
	case startQueued:
		w.transition(domain.StateQueued, domain.ReasonNone)
		w.e.queue.Enroll(w.s.ID, w.s.Request.AdvisorID)
	}

	for !w.s.State.IsTerminal() {
		var tickC, inactC, contC <-chan time.Time
		if w.billingTick != nil {
			tickC = w.billingTick.C
		}
		if w.inactivity != nil {
			inactC = w.inactivity.C
		}
		if w.continuation != nil {
			contC = w.continuation.C
		}

		select {
		case ev := <-w.inbox:
			w.handleEvent(ev)
		case chev, ok := <-w.events:
			if !ok {
				w.events = nil
				w.channelLost()
				continue
			}
			w.handleChannelEvent(chev)
		case now := <-tickC:
			w.handleBillingTick(now)
		case <-inactC:
			w.handleInactivity()
		case <-contC:
			w.handleContinuation()
		}
	}

	close(w.done)
	w.postMu.Lock()
	w.stopped = true
	w.postMu.Unlock()
	w.drainInbox()
}

func (w *worker) drainInbox() {
	for {
		select {
		case ev := <-w.inbox:
			if ev.reply != nil {
				ev.reply <- domain.ErrSessionNotActive
			}
			if ev.kind == evJoinResult && ev.handle != nil {
				ev.handle.Leave()
			}
		default:
			return
		}
	}
}

func (w *worker) handleEvent(ev event) {
	switch ev.kind {
	case evCancel:
		switch w.s.State {
		case domain.StateRequesting, domain.StateQueued, domain.StateConnecting:
			w.terminate(domain.StateCancelled, domain.ReasonUserCancelled)
		case domain.StateActive:
			w.end(domain.ReasonUserEnded)
		}
	case evEnd:
		if w.s.State == domain.StateActive {
			w.end(ev.reason)
		}
	case evBackground:
		switch w.s.State {
		case domain.StateRequesting, domain.StateQueued, domain.StateConnecting:
			w.terminate(domain.StateCancelled, domain.ReasonBackgrounded)
		case domain.StateActive:
			w.end(domain.ReasonBackgrounded)
		}
	case evShutdown:
		switch w.s.State {
		case domain.StateRequesting, domain.StateQueued, domain.StateConnecting:
			w.terminate(domain.StateCancelled, domain.ReasonShutdown)
		case domain.StateActive:
			w.end(domain.ReasonShutdown)
		}
	case evContinue:
		if w.s.State == domain.StateActive {
			w.s.MarkActivity(time.Now())
			w.resetInactivity()
		}
	case evSend:
		w.handleSend(ev)
	case evPromoted:
		if w.s.State == domain.StateQueued {
			if !w.e.presence.TryReserve(w.s.Request.AdvisorID) {
				// The advisor was claimed between the availability
				// signal and this reserve. Keep the position and wait
				// for the next one.
				w.e.queue.Requeue(w.s.ID)
				return
			}
			w.reserved = true
			w.transition(domain.StateConnecting, domain.ReasonNone)
			w.beginJoin()
		}
	case evDropped:
		switch w.s.State {
		case domain.StateQueued, domain.StateConnecting:
			w.terminate(domain.StateCancelled, ev.reason)
		}
	case evJoinResult:
		w.handleJoinResult(ev)
	}
}

// beginJoin runs the bounded connect handshake off the owner goroutine
// so a cancel arriving mid-handshake is still processed promptly.
func (w *worker) beginJoin() {
	s := w.s
	go func() {
		handle, err := w.e.adapter.Join(context.Background(), s.ID, s.Request.CustomerID, s.Request.CustomerID)
		w.post(event{kind: evJoinResult, handle: handle, err: err})
	}()
}

func (w *worker) handleJoinResult(ev event) {
	if w.s.State != domain.StateConnecting {
		// A cancel won the race; never leave an orphaned attachment.
		if ev.handle != nil {
			ev.handle.Leave()
		}
		return
	}
	if ev.err != nil {
		w.e.queue.Retire(w.s.ID)
		w.e.log.WithField("session_id", w.s.ID).WithError(ev.err).Warn("channel join failed")
		w.terminate(domain.StateFailed, domain.ReasonChannelFailed)
		return
	}

	w.handle = ev.handle
	w.events = ev.handle.Events()
	now := time.Now()
	w.s.ConnectedAt = &now
	w.s.MarkActivity(now)

	w.e.queue.Retire(w.s.ID)
	w.e.presence.SetBusy(w.s.Request.AdvisorID)
	w.reserved = true

	w.transition(domain.StateActive, domain.ReasonNone)
	w.startTimers()
}

func (w *worker) handleChannelEvent(chev domain.ChannelEvent) {
	switch chev.Type {
	case domain.EventPeerMessage:
		w.markActivity()
	case domain.EventForcedEnd:
		w.end(domain.ReasonPeerEnded)
	case domain.EventChannelDegraded:
		w.e.log.WithField("session_id", w.s.ID).Warn("channel degraded, reconnecting")
	case domain.EventChannelRestored:
		w.e.log.WithField("session_id", w.s.ID).Info("channel restored")
	case domain.EventPresenceChanged:
		w.e.advisorPresenceChanged(chev.Sender, chev.ProviderFree)
	case domain.EventParticipantCount:
		// informational only
	}
}

// channelLost fires when the event stream closes without the owner
// asking for it: the adapter's reconnect budget is spent.
func (w *worker) channelLost() {
	if w.s.State == domain.StateActive {
		w.e.log.WithField("session_id", w.s.ID).Warn("channel lost past reconnect budget")
		w.end(domain.ReasonChannelFailed)
	}
}

func (w *worker) handleSend(ev event) {
	if w.s.State != domain.StateActive || w.handle == nil {
		if ev.reply != nil {
			ev.reply <- domain.ErrSessionNotActive
		}
		return
	}
	err := w.handle.Send(context.Background(), ev.text)
	// A rate-limited attempt still counts as customer activity: the
	// customer tried to act.
	var rateLimited *domain.RateLimitedError
	if err == nil || errors.As(err, &rateLimited) {
		w.markActivity()
	}
	if ev.reply != nil {
		ev.reply <- err
	}
}

func (w *worker) handleBillingTick(now time.Time) {
	update := w.e.billing.Tick(w.s, now)
	w.e.storeView(w.s.View())
	if w.e.cb.OnCostUpdated != nil {
		w.e.cb.OnCostUpdated(update)
	}

	projection := w.e.billing.ProjectExhaustion(w.s, w.balance)
	if projection <= 0 {
		w.end(domain.ReasonBalanceExhausted)
		return
	}
	if projection <= w.e.cfg.Lifecycle.LowBalanceWarning && !w.lowBalanceWarned {
		w.lowBalanceWarned = true
		w.notify(NotifyLowBalanceWarning, "balance will run out soon")
	}
}

func (w *worker) handleInactivity() {
	if w.s.State != domain.StateActive {
		return
	}
	if !w.warned {
		w.warned = true
		w.notify(NotifyInactivityWarning, "session will end soon without activity")
		w.inactivity.Reset(w.e.cfg.Lifecycle.InactivityTimeout - w.e.cfg.Lifecycle.InactivityWarning)
		return
	}
	w.end(domain.ReasonInactivity)
}

func (w *worker) handleContinuation() {
	if w.s.State != domain.StateActive {
		return
	}
	w.notify(NotifyContinuationPrompt, "continue this session?")
}

func (w *worker) markActivity() {
	w.s.MarkActivity(time.Now())
	w.resetInactivity()
}

// end drives Active -> Ending -> Summary. First writer wins: once the
// session has left Active every later terminal trigger is a no-op.
func (w *worker) end(reason domain.EndReason) {
	if w.s.State != domain.StateActive {
		return
	}
	now := time.Now()
	w.s.Accrue(now)
	w.stopTimers()
	w.events = nil
	if w.handle != nil {
		w.handle.Leave()
		w.handle = nil
	}

	w.transition(domain.StateEnding, reason)
	summary := w.finalize(now)
	w.transition(domain.StateSummary, domain.ReasonNone)

	w.e.storeSummary(summary)
	if w.e.cb.OnSummaryReady != nil {
		w.e.cb.OnSummaryReady(summary)
	}
	w.notify(NotifySummaryReady, "")
	w.freePresence()
}

// finalize settles the session exactly once. The summary reaches the
// caller immediately even when the ledger is down; the debit then goes
// through the retry queue with the session id as idempotency key.
func (w *worker) finalize(now time.Time) domain.SessionSummary {
	fc := w.e.billing.Finalize(w.s)

	ctx, cancel := context.WithTimeout(context.Background(), w.e.cfg.Lifecycle.LedgerTimeout)
	newBalance, err := w.e.ledger.Debit(ctx, w.s.Request.CustomerID, fc.Amount, w.s.ID)
	cancel()

	settled := err == nil
	remaining := newBalance
	if err != nil {
		remaining = w.balance - fc.Amount
		w.e.log.WithField("session_id", w.s.ID).WithError(err).Warn("ledger debit failed, queuing settlement")
		if qerr := w.e.repo.EnqueueSettlement(Settlement{
			SessionID:  w.s.ID,
			CustomerID: w.s.Request.CustomerID,
			Amount:     fc.Amount,
			EnqueuedAt: now,
		}); qerr != nil {
			w.e.log.WithField("session_id", w.s.ID).WithError(qerr).Error("failed to queue settlement")
		}
	}

	summary := domain.SessionSummary{
		SessionID:        w.s.ID,
		CustomerID:       w.s.Request.CustomerID,
		AdvisorID:        w.s.Request.AdvisorID,
		Modality:         w.s.Request.Modality,
		DurationSeconds:  fc.DurationSeconds,
		TotalCost:        fc.Amount,
		RemainingBalance: remaining,
		EndReason:        w.s.EndReason.String(),
		EndedAt:          now,
		Settled:          settled,
	}
	if err := w.e.repo.SaveSummary(summary); err != nil {
		w.e.log.WithField("session_id", w.s.ID).WithError(err).Error("failed to persist summary")
	}

	if err := w.e.stats.Record(w.s.Request.AdvisorID, fc.DurationSeconds); err != nil {
		w.e.log.WithField("advisor_id", w.s.Request.AdvisorID).WithError(err).Warn("failed to record session duration")
	}
	w.e.queue.RefreshEstimates(w.s.Request.AdvisorID)

	w.notify(NotifySessionEnded, w.s.EndReason.String())
	return summary
}

// terminate is the short-circuit into Cancelled or Failed from any
// pre-Active state. No summary is produced: nothing was billed.
func (w *worker) terminate(state domain.SessionState, reason domain.EndReason) {
	w.e.queue.Cancel(w.s.ID)
	w.transition(state, reason)
	w.notify(NotifySessionEnded, reason.String())
	w.freePresence()
}

func (w *worker) freePresence() {
	if w.reserved {
		w.reserved = false
		w.e.presence.SetFree(w.s.Request.AdvisorID)
	}
}

func (w *worker) transition(next domain.SessionState, reason domain.EndReason) {
	if !w.s.State.CanTransition(next) {
		w.e.log.WithFields(logrus.Fields{
			"session_id": w.s.ID,
			"from":       w.s.State.String(),
			"to":         next.String(),
		}).Error("illegal state transition dropped")
		return
	}
	w.s.State = next
	if reason != domain.ReasonNone && w.s.EndReason == domain.ReasonNone {
		w.s.EndReason = reason
	}
	view := w.s.View()
	w.e.storeView(view)
	w.e.persist(view)
	w.e.notifyState(w.s.ID, next, w.s.EndReason)
}

func (w *worker) startTimers() {
	w.billingTick = time.NewTicker(w.e.billing.Policy().TickInterval)
	w.continuation = time.NewTicker(w.e.cfg.Lifecycle.ContinuationInterval)
	// Calls have no silent-idle notion; only chat runs the inactivity
	// clock.
	if w.s.Request.Modality == domain.ModalityChat {
		w.inactivity = time.NewTimer(w.e.cfg.Lifecycle.InactivityWarning)
	}
}

func (w *worker) resetInactivity() {
	if w.inactivity == nil {
		return
	}
	if !w.inactivity.Stop() {
		select {
		case <-w.inactivity.C:
		default:
		}
	}
	w.warned = false
	w.inactivity.Reset(w.e.cfg.Lifecycle.InactivityWarning)
}

func (w *worker) stopTimers() {
	if w.billingTick != nil {
		w.billingTick.Stop()
		w.billingTick = nil
	}
	if w.inactivity != nil {
		w.inactivity.Stop()
		w.inactivity = nil
	}
	if w.continuation != nil {
		w.continuation.Stop()
		w.continuation = nil
	}
}

func (w *worker) notify(eventType, message string) {
	if w.e.sink == nil {
		return
	}
	w.e.sink.Notify(NotificationEvent{
		Type:       eventType,
		SessionID:  w.s.ID,
		CustomerID: w.s.Request.CustomerID,
		AdvisorID:  w.s.Request.AdvisorID,
		Message:    message,
		At:         time.Now(),
	})
}
