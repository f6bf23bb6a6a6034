package domain

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDurations struct {
	mu  sync.Mutex
	avg map[string]time.Duration
}

func (s *stubDurations) set(advisorID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.avg == nil {
		s.avg = make(map[string]time.Duration)
	}
	s.avg[advisorID] = d
}

func (s *stubDurations) AverageDuration(advisorID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.avg[advisorID]
	return d, ok
}

type recordingListener struct {
	mu       sync.Mutex
	updates  []QueueUpdate
	promoted []string
	dropped  map[string]EndReason
}

func newRecordingListener() *recordingListener {
	return &recordingListener{dropped: make(map[string]EndReason)}
}

func (l *recordingListener) QueueUpdated(u QueueUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, u)
}

func (l *recordingListener) TicketPromoted(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.promoted = append(l.promoted, sessionID)
}

func (l *recordingListener) TicketDropped(sessionID string, reason EndReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropped[sessionID] = reason
}

func (l *recordingListener) promotedList() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.promoted...)
}

func (l *recordingListener) droppedReason(sessionID string) (EndReason, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.dropped[sessionID]
	return r, ok
}

func newTestQueue(hold time.Duration) (*QueueCoordinator, *stubDurations, *recordingListener) {
	stats := &stubDurations{}
	listener := newRecordingListener()
	q := NewQueueCoordinator(QueuePolicy{
		HoldWindow:             hold,
		DefaultWaitPerPosition: 5 * time.Minute,
	}, stats, listener)
	return q, stats, listener
}

func positions(q *QueueCoordinator, advisorID string) []int {
	var out []int
	for _, u := range q.Snapshot(advisorID) {
		out = append(out, u.Position)
	}
	return out
}

func TestEnrollAssignsContiguousPositions(t *testing.T) {
	q, _, _ := newTestQueue(time.Minute)

	t1 := q.Enroll("s1", "a1")
	t2 := q.Enroll("s2", "a1")
	t3 := q.Enroll("s3", "a1")

	assert.Equal(t, 1, t1.Position)
	assert.Equal(t, 2, t2.Position)
	assert.Equal(t, 3, t3.Position)
	assert.Equal(t, []int{1, 2, 3}, positions(q, "a1"))

	// Default estimate scales with position.
	assert.Equal(t, 5*time.Minute, t1.EstimatedWait)
	assert.Equal(t, 15*time.Minute, t3.EstimatedWait)
}

func TestCancelRenumbersBehind(t *testing.T) {
	q, _, listener := newTestQueue(time.Minute)

	q.Enroll("s1", "a1")
	q.Enroll("s2", "a1")
	q.Enroll("s3", "a1")

	q.Cancel("s2")

	assert.Equal(t, []int{1, 2}, positions(q, "a1"))
	t3, ok := q.Ticket("s3")
	require.True(t, ok)
	assert.Equal(t, 2, t3.Position)

	// Cancelling never promotes anyone.
	assert.Empty(t, listener.promotedList())
}

func TestCancelUnknownSessionIsNoop(t *testing.T) {
	q, _, _ := newTestQueue(time.Minute)
	q.Cancel("missing")
	assert.Empty(t, positions(q, "a1"))
}

func TestProviderFreedPromotesHead(t *testing.T) {
	q, _, listener := newTestQueue(time.Minute)

	q.Enroll("s1", "a1")
	q.Enroll("s2", "a1")

	q.OnProviderFreed("a1")

	assert.Equal(t, []string{"s1"}, listener.promotedList())
	head, ok := q.Ticket("s1")
	require.True(t, ok)
	assert.True(t, head.OnHold())

	// A second freed signal while the head is on hold promotes nothing.
	q.OnProviderFreed("a1")
	assert.Equal(t, []string{"s1"}, listener.promotedList())
}

func TestRetireResolvesWithoutPromoting(t *testing.T) {
	q, _, listener := newTestQueue(time.Minute)

	q.Enroll("s1", "a1")
	q.Enroll("s2", "a1")
	q.OnProviderFreed("a1")

	q.Retire("s1")

	_, ok := q.Ticket("s1")
	assert.False(t, ok)
	assert.Equal(t, []int{1}, positions(q, "a1"))
	assert.Equal(t, []string{"s1"}, listener.promotedList())
}

func TestRequeueClearsHoldAndKeepsPosition(t *testing.T) {
	q, _, listener := newTestQueue(30 * time.Millisecond)

	q.Enroll("s1", "a1")
	q.Enroll("s2", "a1")
	q.OnProviderFreed("a1")

	q.Requeue("s1")

	ticket, ok := q.Ticket("s1")
	require.True(t, ok)
	assert.False(t, ticket.OnHold())
	assert.Equal(t, 1, ticket.Position)

	// The hold timer is stopped: the ticket must not expire.
	time.Sleep(60 * time.Millisecond)
	_, ok = q.Ticket("s1")
	assert.True(t, ok)
	_, dropped := listener.droppedReason("s1")
	assert.False(t, dropped)

	// The same head is promoted again on the next signal.
	q.OnProviderFreed("a1")
	assert.Equal(t, []string{"s1", "s1"}, listener.promotedList())
}

func TestHoldExpiryDropsAndPromotesNext(t *testing.T) {
	q, _, listener := newTestQueue(30 * time.Millisecond)

	q.Enroll("s1", "a1")
	q.Enroll("s2", "a1")
	q.OnProviderFreed("a1")

	require.Eventually(t, func() bool {
		_, dropped := listener.droppedReason("s1")
		return dropped
	}, time.Second, 5*time.Millisecond)

	reason, _ := listener.droppedReason("s1")
	assert.Equal(t, ReasonHoldExpired, reason)

	require.Eventually(t, func() bool {
		return len(listener.promotedList()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"s1", "s2"}, listener.promotedList())

	_, ok := q.Ticket("s1")
	assert.False(t, ok)
}

func TestAdvisorOfflineDropsWholeQueue(t *testing.T) {
	q, _, listener := newTestQueue(time.Minute)

	q.Enroll("s1", "a1")
	q.Enroll("s2", "a1")
	q.Enroll("other", "a2")

	q.AdvisorOffline("a1")

	r1, ok := listener.droppedReason("s1")
	require.True(t, ok)
	assert.Equal(t, ReasonAdvisorUnavailable, r1)
	r2, ok := listener.droppedReason("s2")
	require.True(t, ok)
	assert.Equal(t, ReasonAdvisorUnavailable, r2)

	assert.Empty(t, positions(q, "a1"))
	assert.Equal(t, []int{1}, positions(q, "a2"))
}

func TestEstimatesFollowObservedAverages(t *testing.T) {
	q, stats, _ := newTestQueue(time.Minute)
	stats.set("a1", 2*time.Minute)

	t1 := q.Enroll("s1", "a1")
	t2 := q.Enroll("s2", "a1")
	assert.Equal(t, 2*time.Minute, t1.EstimatedWait)
	assert.Equal(t, 4*time.Minute, t2.EstimatedWait)
}

func TestRefreshEstimatesOnlyOnMaterialChange(t *testing.T) {
	q, stats, listener := newTestQueue(time.Minute)
	stats.set("a1", 10*time.Minute)

	q.Enroll("s1", "a1")
	q.RefreshEstimates("a1")

	listener.mu.Lock()
	baseline := len(listener.updates)
	listener.mu.Unlock()

	// 10% move: below the material-change threshold, no push.
	stats.set("a1", 11*time.Minute)
	q.RefreshEstimates("a1")
	listener.mu.Lock()
	assert.Equal(t, baseline, len(listener.updates))
	listener.mu.Unlock()

	// 50% move: pushed.
	stats.set("a1", 15*time.Minute)
	q.RefreshEstimates("a1")
	listener.mu.Lock()
	assert.Greater(t, len(listener.updates), baseline)
	last := listener.updates[len(listener.updates)-1]
	listener.mu.Unlock()
	assert.Equal(t, 15*time.Minute, last.EstimatedWait)
}
