package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/nakshatratalks/consult-engine/server/domain"
)

// LifecyclePolicy carries the timer tunables of the session lifecycle.
// The inactivity clock and the continuation prompt are deliberately
// two independent timers: answering a continuation prompt resets only
// the inactivity clock.
type LifecyclePolicy struct {
	InactivityWarning    time.Duration
	InactivityTimeout    time.Duration
	ContinuationInterval time.Duration
	// LowBalanceWarning is the projected-exhaustion lead time at which
	// a single low-balance warning is pushed.
	LowBalanceWarning time.Duration
	// LedgerTimeout bounds every balance-service round trip.
	LedgerTimeout time.Duration
}

func DefaultLifecyclePolicy() LifecyclePolicy {
	return LifecyclePolicy{
		InactivityWarning:    270 * time.Second,
		InactivityTimeout:    300 * time.Second,
		ContinuationInterval: 5 * time.Minute,
		LowBalanceWarning:    60 * time.Second,
		LedgerTimeout:        10 * time.Second,
	}
}

// Config bundles the policies the engine and its owned components run
// under.
type Config struct {
	Billing   domain.BillingPolicy
	Queue     domain.QueuePolicy
	Lifecycle LifecyclePolicy
}

func DefaultConfig() Config {
	return Config{
		Billing:   domain.DefaultBillingPolicy(),
		Queue:     domain.DefaultQueuePolicy(),
		Lifecycle: DefaultLifecyclePolicy(),
	}
}

// Engine is the session lifecycle state machine. It owns the canonical
// state of every session: one goroutine per session serializes all of
// that session's transitions, so billing ticks, channel events, queue
// signals, and user commands never race on state.
type Engine struct {
	cfg      Config
	billing  *domain.BillingEngine
	queue    *domain.QueueCoordinator
	adapter  *domain.ChannelAdapter
	presence *domain.PresenceRegistry
	stats    *AdvisorStats
	ledger   Ledger
	sink     NotificationSink
	repo     Repository
	cb       Callbacks
	log      *logrus.Entry

	mu        sync.RWMutex
	workers   map[string]*worker
	pairs     map[string]string
	views     map[string]domain.SessionView
	summaries map[string]domain.SessionSummary
	closed    bool
	wg        sync.WaitGroup
}

func NewEngine(cfg Config, adapter *domain.ChannelAdapter, ledger Ledger, sink NotificationSink, repo Repository, cb Callbacks, log *logrus.Entry) *Engine {
	e := &Engine{
		cfg:       cfg,
		billing:   domain.NewBillingEngine(cfg.Billing),
		adapter:   adapter,
		presence:  domain.NewPresenceRegistry(),
		stats:     NewAdvisorStats(repo),
		ledger:    ledger,
		sink:      sink,
		repo:      repo,
		cb:        cb,
		log:       log,
		workers:   make(map[string]*worker),
		pairs:     make(map[string]string),
		views:     make(map[string]domain.SessionView),
		summaries: make(map[string]domain.SessionSummary),
	}
	e.queue = domain.NewQueueCoordinator(cfg.Queue, e.stats, e)
	e.presence.OnFreed(e.queue.OnProviderFreed)
	e.presence.OnOffline(e.queue.AdvisorOffline)
	return e
}

// Presence exposes advisor availability for the outward surface.
func (e *Engine) Presence() *domain.PresenceRegistry {
	return e.presence
}

// Billing exposes the accrual engine (finalize is reached through the
// lifecycle only; this is for read-side policy introspection).
func (e *Engine) Billing() *domain.BillingEngine {
	return e.billing
}

// SetAdvisorPresence records an advisor going on or off shift. Going
// offline drops the advisor's whole queue; coming back online makes
// the advisor admittable again.
func (e *Engine) SetAdvisorPresence(advisorID string, online bool) {
	e.log.WithFields(logrus.Fields{
		"advisor_id": advisorID,
		"online":     online,
	}).Info("advisor presence changed")
	if online {
		e.presence.SetOnline(advisorID)
		return
	}
	e.presence.SetOffline(advisorID)
}

// advisorPresenceChanged applies a transport-level presence event to
// the registry. A free signal on a busy advisor promotes the head of
// that advisor's queue.
func (e *Engine) advisorPresenceChanged(advisorID string, free bool) {
	if free {
		e.presence.SetFree(advisorID)
		return
	}
	e.presence.SetBusy(advisorID)
}

// QueueSnapshot lists an advisor's wait list in position order.
func (e *Engine) QueueSnapshot(advisorID string) []domain.QueueUpdate {
	return e.queue.Snapshot(advisorID)
}

func pairKey(customerID, advisorID string) string {
	return customerID + "\x00" + advisorID
}

// RequestSession admits a consultation request. Admission errors
// (insufficient balance, advisor offline, duplicate pair) come back
// synchronously and leave no session behind.
func (e *Engine) RequestSession(ctx context.Context, req domain.SessionRequest) (domain.SessionView, error) {
	if !req.IsValid() {
		return domain.SessionView{}, domain.ErrInvalidRequest
	}
	if !e.presence.IsOnline(req.AdvisorID) {
		return domain.SessionView{}, domain.ErrAdvisorUnavailable
	}

	key := pairKey(req.CustomerID, req.AdvisorID)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.SessionView{}, domain.ErrEngineClosed
	}
	if _, busy := e.pairs[key]; busy {
		e.mu.Unlock()
		return domain.SessionView{}, domain.ErrSessionExists
	}
	// Reserve the pair before the ledger round trip so a racing second
	// request fails fast instead of double-admitting.
	e.pairs[key] = ""
	e.mu.Unlock()

	release := func() {
		e.mu.Lock()
		delete(e.pairs, key)
		e.mu.Unlock()
	}

	lctx, cancel := context.WithTimeout(ctx, e.cfg.Lifecycle.LedgerTimeout)
	balance, err := e.ledger.GetBalance(lctx, req.CustomerID)
	cancel()
	if err != nil {
		release()
		return domain.SessionView{}, &domain.LedgerUnavailableError{Cause: err}
	}
	if err := e.billing.ValidateMinimum(balance, req.RatePerMin); err != nil {
		release()
		return domain.SessionView{}, err
	}

	s := domain.NewSession(ulid.Make().String(), req)
	w := newWorker(e, s, balance)

	e.mu.Lock()
	if e.closed {
		delete(e.pairs, key)
		e.mu.Unlock()
		return domain.SessionView{}, domain.ErrEngineClosed
	}
	e.pairs[key] = s.ID
	e.workers[s.ID] = w
	e.views[s.ID] = s.View()
	e.wg.Add(1)
	e.mu.Unlock()

	view := s.View()
	e.persist(view)
	e.notifyState(s.ID, s.State, domain.ReasonNone)

	// The worker owns all further transitions; the initial direction
	// just depends on whether the advisor can take the session now.
	if e.presence.TryReserve(req.AdvisorID) {
		go w.run(startConnect)
	} else {
		go w.run(startQueued)
	}

	e.log.WithFields(logrus.Fields{
		"session_id":  s.ID,
		"customer_id": req.CustomerID,
		"advisor_id":  req.AdvisorID,
		"modality":    req.Modality,
	}).Info("session admitted")

	return view, nil
}

// Cancel aborts a session that has not finished connecting; on an
// Active session it behaves as a user-initiated end.
func (e *Engine) Cancel(sessionID string) error {
	return e.post(sessionID, event{kind: evCancel})
}

// EndSession ends an Active session with a user-facing reason.
func (e *Engine) EndSession(sessionID string) error {
	return e.post(sessionID, event{kind: evEnd, reason: domain.ReasonUserEnded})
}

// Backgrounded reports the customer's app losing foreground. The
// session is driven to a terminal state rather than left accruing with
// no observer.
func (e *Engine) Backgrounded(sessionID string) error {
	return e.post(sessionID, event{kind: evBackground})
}

// ContinueSession is the customer's answer to a continuation prompt.
// It resets only the inactivity clock.
func (e *Engine) ContinueSession(sessionID string) error {
	return e.post(sessionID, event{kind: evContinue})
}

// SendMessage forwards a chat message on the session's channel and
// reports the transport's answer, rate limits included, without
// retrying.
func (e *Engine) SendMessage(ctx context.Context, sessionID, text string) error {
	reply := make(chan error, 1)
	if err := e.post(sessionID, event{kind: evSend, text: text, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitRating accepts at most one rating per finished session.
func (e *Engine) SubmitRating(sessionID string, score int, comment string) error {
	if _, err := e.Summary(sessionID); err != nil {
		return err
	}
	rating := domain.Rating{
		SessionID: sessionID,
		Score:     score,
		Comment:   comment,
		CreatedAt: time.Now(),
	}
	if !rating.IsValid() {
		return fmt.Errorf("rating score must be between 1 and 5")
	}
	if _, err := e.repo.GetRating(sessionID); err == nil {
		return domain.ErrAlreadyRated
	}
	if err := e.repo.SaveRating(rating); err != nil {
		return fmt.Errorf("failed to save rating: %w", err)
	}
	return nil
}

// Session returns the latest snapshot of a session, terminal included.
func (e *Engine) Session(sessionID string) (domain.SessionView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.views[sessionID]
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	return v, nil
}

// Sessions lists the latest snapshot of every session this engine has
// seen since start.
func (e *Engine) Sessions() []domain.SessionView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.SessionView, 0, len(e.views))
	for _, v := range e.views {
		out = append(out, v)
	}
	return out
}

// Summary returns the finalized summary of an ended session. An
// unsettled cached copy is re-read from the repository: the settlement
// sweep marks the persisted row settled behind the engine's back.
func (e *Engine) Summary(sessionID string) (domain.SessionSummary, error) {
	e.mu.RLock()
	cached, ok := e.summaries[sessionID]
	e.mu.RUnlock()
	if ok && cached.Settled {
		return cached, nil
	}
	s, err := e.repo.GetSummary(sessionID)
	if err != nil {
		if ok {
			return cached, nil
		}
		return domain.SessionSummary{}, domain.ErrSummaryNotFound
	}
	if ok && s.Settled {
		e.storeSummary(s)
	}
	return s, nil
}

// Shutdown drains every live session to a terminal state and waits for
// the workers, bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	workers := make([]*worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	for _, w := range workers {
		w.post(event{kind: evShutdown})
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown timed out: %w", ctx.Err())
	}
}

// QueueUpdated implements domain.QueueListener.
func (e *Engine) QueueUpdated(update domain.QueueUpdate) {
	if e.cb.OnQueueUpdated != nil {
		e.cb.OnQueueUpdated(update)
	}
}

// TicketPromoted implements domain.QueueListener: the ticket's session
// gets its connect attempt.
func (e *Engine) TicketPromoted(sessionID string) {
	if err := e.post(sessionID, event{kind: evPromoted}); err != nil {
		e.log.WithField("session_id", sessionID).WithError(err).Warn("promoted ticket has no live session")
	}
}

// TicketDropped implements domain.QueueListener.
func (e *Engine) TicketDropped(sessionID string, reason domain.EndReason) {
	if err := e.post(sessionID, event{kind: evDropped, reason: reason}); err != nil {
		e.log.WithField("session_id", sessionID).WithError(err).Debug("dropped ticket has no live session")
	}
}

func (e *Engine) post(sessionID string, ev event) error {
	e.mu.RLock()
	w, ok := e.workers[sessionID]
	e.mu.RUnlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	w.post(ev)
	return nil
}

func (e *Engine) storeView(v domain.SessionView) {
	e.mu.Lock()
	e.views[v.ID] = v
	e.mu.Unlock()
}

func (e *Engine) storeSummary(s domain.SessionSummary) {
	e.mu.Lock()
	e.summaries[s.SessionID] = s
	e.mu.Unlock()
}

// release retires a finished worker. The pair slot opens up; the view
// and summary stay addressable.
func (e *Engine) release(w *worker) {
	key := pairKey(w.s.Request.CustomerID, w.s.Request.AdvisorID)
	e.mu.Lock()
	delete(e.workers, w.s.ID)
	if e.pairs[key] == w.s.ID {
		delete(e.pairs, key)
	}
	e.mu.Unlock()
	e.wg.Done()
}

func (e *Engine) persist(v domain.SessionView) {
	if err := e.repo.SaveSession(v); err != nil {
		e.log.WithField("session_id", v.ID).WithError(err).Error("failed to persist session")
	}
}

func (e *Engine) notifyState(sessionID string, state domain.SessionState, reason domain.EndReason) {
	if e.cb.OnStateChanged != nil {
		e.cb.OnStateChanged(sessionID, state, reason)
	}
}
