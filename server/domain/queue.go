package domain

import (
	"math"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// QueuePolicy carries the wait-list tunables.
type QueuePolicy struct {
	// HoldWindow is how long a promoted ticket has to complete its
	// connect handshake before forfeiting its turn.
	HoldWindow time.Duration
	// DefaultWaitPerPosition estimates wait until enough session
	// durations for the advisor have been observed.
	DefaultWaitPerPosition time.Duration
}

func DefaultQueuePolicy() QueuePolicy {
	return QueuePolicy{
		HoldWindow:             30 * time.Second,
		DefaultWaitPerPosition: 5 * time.Minute,
	}
}

// DurationSource reports the observed average session duration for an
// advisor, when one exists.
type DurationSource interface {
	AverageDuration(advisorID string) (time.Duration, bool)
}

// QueueListener receives pushed queue signals. The lifecycle engine
// implements it; the coordinator never touches session state itself.
type QueueListener interface {
	QueueUpdated(update QueueUpdate)
	TicketPromoted(sessionID string)
	TicketDropped(sessionID string, reason EndReason)
}

// QueueCoordinator keeps one FIFO wait list per advisor. Positions are
// 1-based and contiguous; a cancellation closes the gap immediately.
type QueueCoordinator struct {
	policy   QueuePolicy
	stats    DurationSource
	listener QueueListener

	mu         sync.Mutex
	queues     map[string][]*QueueTicket
	bySession  map[string]*QueueTicket
	holdTimers map[string]*time.Timer
	lastAvg    map[string]time.Duration
}

func NewQueueCoordinator(policy QueuePolicy, stats DurationSource, listener QueueListener) *QueueCoordinator {
	return &QueueCoordinator{
		policy:     policy,
		stats:      stats,
		listener:   listener,
		queues:     make(map[string][]*QueueTicket),
		bySession:  make(map[string]*QueueTicket),
		holdTimers: make(map[string]*time.Timer),
		lastAvg:    make(map[string]time.Duration),
	}
}

// Enroll appends the session at the tail of the advisor's queue and
// pushes the initial position to the listener.
func (q *QueueCoordinator) Enroll(sessionID, advisorID string) *QueueTicket {
	q.mu.Lock()
	ticket := &QueueTicket{
		ID:         ulid.Make().String(),
		SessionID:  sessionID,
		AdvisorID:  advisorID,
		Position:   len(q.queues[advisorID]) + 1,
		EnrolledAt: time.Now(),
	}
	ticket.EstimatedWait = q.estimateLocked(advisorID, ticket.Position)
	q.queues[advisorID] = append(q.queues[advisorID], ticket)
	q.bySession[sessionID] = ticket
	update := q.updateForLocked(ticket)
	q.mu.Unlock()

	q.listener.QueueUpdated(update)
	return ticket
}

// Cancel removes the session's ticket and renumbers everything behind
// it. No-op if the session is not enrolled.
func (q *QueueCoordinator) Cancel(sessionID string) {
	q.mu.Lock()
	ticket, ok := q.bySession[sessionID]
	if !ok {
		q.mu.Unlock()
		return
	}
	q.stopHoldLocked(ticket)
	updates := q.removeLocked(ticket)
	q.mu.Unlock()

	for _, u := range updates {
		q.listener.QueueUpdated(u)
	}
}

// OnProviderFreed promotes the head-of-queue ticket for the advisor
// into a bounded-hold connect attempt.
func (q *QueueCoordinator) OnProviderFreed(advisorID string) {
	q.mu.Lock()
	promoted := q.promoteHeadLocked(advisorID)
	q.mu.Unlock()

	if promoted != "" {
		q.listener.TicketPromoted(promoted)
	}
}

// Retire resolves a promoted ticket: its handshake finished, one way
// or the other. The ticket leaves the queue without promoting the next
// one; promotion is always driven by advisor availability.
func (q *QueueCoordinator) Retire(sessionID string) {
	q.mu.Lock()
	ticket, ok := q.bySession[sessionID]
	if !ok || !ticket.OnHold() {
		q.mu.Unlock()
		return
	}
	q.stopHoldLocked(ticket)
	updates := q.removeLocked(ticket)
	q.mu.Unlock()

	for _, u := range updates {
		q.listener.QueueUpdated(u)
	}
}

// Requeue returns a promoted ticket to plain waiting when its connect
// attempt never started: the advisor was claimed by someone else
// between promotion and the reserve. The ticket keeps its position and
// the next availability signal promotes it again.
func (q *QueueCoordinator) Requeue(sessionID string) {
	q.mu.Lock()
	ticket, ok := q.bySession[sessionID]
	if !ok || !ticket.OnHold() {
		q.mu.Unlock()
		return
	}
	q.stopHoldLocked(ticket)
	q.mu.Unlock()
}

// AdvisorOffline drops every ticket in the advisor's queue with a
// terminal signal. Queue membership never goes quiet.
func (q *QueueCoordinator) AdvisorOffline(advisorID string) {
	q.mu.Lock()
	tickets := q.queues[advisorID]
	delete(q.queues, advisorID)
	for _, t := range tickets {
		q.stopHoldLocked(t)
		delete(q.bySession, t.SessionID)
	}
	q.mu.Unlock()

	for _, t := range tickets {
		q.listener.TicketDropped(t.SessionID, ReasonAdvisorUnavailable)
	}
}

// RefreshEstimates recomputes wait estimates after the advisor's
// average session duration changed. Updates are only pushed when the
// average moved materially (>20%).
func (q *QueueCoordinator) RefreshEstimates(advisorID string) {
	q.mu.Lock()
	avg, ok := q.stats.AverageDuration(advisorID)
	if !ok {
		q.mu.Unlock()
		return
	}
	last := q.lastAvg[advisorID]
	if last > 0 && math.Abs(float64(avg-last)) <= 0.2*float64(last) {
		q.mu.Unlock()
		return
	}
	q.lastAvg[advisorID] = avg

	var updates []QueueUpdate
	for _, t := range q.queues[advisorID] {
		t.EstimatedWait = q.estimateLocked(advisorID, t.Position)
		updates = append(updates, q.updateForLocked(t))
	}
	q.mu.Unlock()

	for _, u := range updates {
		q.listener.QueueUpdated(u)
	}
}

// Ticket returns the live ticket for a session, if any.
func (q *QueueCoordinator) Ticket(sessionID string) (*QueueTicket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.bySession[sessionID]
	if !ok {
		return nil, false
	}
	copy := *t
	return &copy, true
}

// Snapshot lists the advisor's queue in position order.
func (q *QueueCoordinator) Snapshot(advisorID string) []QueueUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []QueueUpdate
	for _, t := range q.queues[advisorID] {
		out = append(out, q.updateForLocked(t))
	}
	return out
}

func (q *QueueCoordinator) promoteHeadLocked(advisorID string) string {
	queue := q.queues[advisorID]
	if len(queue) == 0 {
		return ""
	}
	head := queue[0]
	if head.OnHold() {
		// Already promoted; waiting on its handshake.
		return ""
	}
	expiry := time.Now().Add(q.policy.HoldWindow)
	head.HoldExpiresAt = &expiry
	q.holdTimers[head.ID] = time.AfterFunc(q.policy.HoldWindow, func() {
		q.expireHold(head.ID)
	})
	return head.SessionID
}

// expireHold drops a stalled promoted ticket and moves the line up. A
// stalled customer never blocks the rest of the queue.
func (q *QueueCoordinator) expireHold(ticketID string) {
	q.mu.Lock()
	var expired *QueueTicket
	for _, t := range q.bySession {
		if t.ID == ticketID {
			expired = t
			break
		}
	}
	if expired == nil || !expired.OnHold() {
		q.mu.Unlock()
		return
	}
	delete(q.holdTimers, ticketID)
	updates := q.removeLocked(expired)
	next := q.promoteHeadLocked(expired.AdvisorID)
	q.mu.Unlock()

	q.listener.TicketDropped(expired.SessionID, ReasonHoldExpired)
	for _, u := range updates {
		q.listener.QueueUpdated(u)
	}
	if next != "" {
		q.listener.TicketPromoted(next)
	}
}

func (q *QueueCoordinator) stopHoldLocked(t *QueueTicket) {
	if timer, ok := q.holdTimers[t.ID]; ok {
		timer.Stop()
		delete(q.holdTimers, t.ID)
	}
	t.HoldExpiresAt = nil
}

// removeLocked takes the ticket out of its queue and renumbers the
// tickets behind it, returning the updates to push.
func (q *QueueCoordinator) removeLocked(ticket *QueueTicket) []QueueUpdate {
	queue := q.queues[ticket.AdvisorID]
	idx := -1
	for i, t := range queue {
		if t.ID == ticket.ID {
			idx = i
			break
		}
	}
	delete(q.bySession, ticket.SessionID)
	if idx < 0 {
		return nil
	}
	queue = append(queue[:idx], queue[idx+1:]...)
	if len(queue) == 0 {
		delete(q.queues, ticket.AdvisorID)
	} else {
		q.queues[ticket.AdvisorID] = queue
	}

	var updates []QueueUpdate
	for i := idx; i < len(queue); i++ {
		queue[i].Position = i + 1
		queue[i].EstimatedWait = q.estimateLocked(ticket.AdvisorID, queue[i].Position)
		updates = append(updates, q.updateForLocked(queue[i]))
	}
	return updates
}

func (q *QueueCoordinator) estimateLocked(advisorID string, position int) time.Duration {
	per := q.policy.DefaultWaitPerPosition
	if q.stats != nil {
		if avg, ok := q.stats.AverageDuration(advisorID); ok && avg > 0 {
			per = avg
		}
	}
	return time.Duration(position) * per
}

func (q *QueueCoordinator) updateForLocked(t *QueueTicket) QueueUpdate {
	return QueueUpdate{
		SessionID:     t.SessionID,
		Position:      t.Position,
		EstimatedWait: t.EstimatedWait,
	}
}
