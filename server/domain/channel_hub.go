package domain

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const hubEventBuffer = 256

// ChannelHub is the in-process Transport implementation: one topic per
// session, fanned out to every attached participant in publish order.
type ChannelHub struct {
	mu     sync.RWMutex
	topics map[string]*hubTopic

	// test and fault-injection hooks
	dialErr   error
	dialDelay time.Duration
	rateLimit time.Duration
}

type hubTopic struct {
	mu        sync.RWMutex
	sessionID string
	members   map[string]*hubConn
	broadcast chan ChannelEvent
}

type hubConn struct {
	hub           *ChannelHub
	topic         *hubTopic
	participantID string
	displayName   string
	events        chan ChannelEvent
	closeOnce     sync.Once
	closed        chan struct{}
}

func NewChannelHub() *ChannelHub {
	return &ChannelHub{
		topics: make(map[string]*hubTopic),
	}
}

func newHubTopic(sessionID string) *hubTopic {
	t := &hubTopic{
		sessionID: sessionID,
		members:   make(map[string]*hubConn),
		broadcast: make(chan ChannelEvent, hubEventBuffer),
	}
	go t.fanout()
	return t
}

func (t *hubTopic) fanout() {
	for event := range t.broadcast {
		t.mu.RLock()
		for id, member := range t.members {
			if event.Type == EventPeerMessage && id == event.Sender {
				continue
			}
			select {
			case member.events <- event:
			default:
			}
		}
		t.mu.RUnlock()
	}
}

// Dial attaches a participant to the session topic, creating the topic
// on first join. Honors ctx cancellation while the (possibly injected)
// connect latency elapses.
func (h *ChannelHub) Dial(ctx context.Context, sessionID, participantID, displayName string) (TransportConn, error) {
	h.mu.Lock()
	dialErr, dialDelay := h.dialErr, h.dialDelay
	h.dialErr = nil
	h.mu.Unlock()

	if dialDelay > 0 {
		select {
		case <-time.After(dialDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	topic, ok := h.topics[sessionID]
	if !ok {
		topic = newHubTopic(sessionID)
		h.topics[sessionID] = topic
	}
	h.mu.Unlock()

	conn := &hubConn{
		hub:           h,
		topic:         topic,
		participantID: participantID,
		displayName:   displayName,
		events:        make(chan ChannelEvent, hubEventBuffer),
		closed:        make(chan struct{}),
	}

	topic.mu.Lock()
	topic.members[participantID] = conn
	count := len(topic.members)
	topic.mu.Unlock()

	topic.publish(NewParticipantCountEvent(sessionID, count))
	return conn, nil
}

func (t *hubTopic) publish(event ChannelEvent) bool {
	select {
	case t.broadcast <- event:
		return true
	default:
		return false
	}
}

// Broadcast publishes an event to every participant of the session
// topic. Used to inject presence changes and forced session ends.
func (h *ChannelHub) Broadcast(sessionID string, event ChannelEvent) error {
	h.mu.RLock()
	topic, ok := h.topics[sessionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no topic for session %s", sessionID)
	}
	if !topic.publish(event) {
		return fmt.Errorf("topic %s broadcast channel is full", sessionID)
	}
	return nil
}

// ForceEnd tells every participant the session is over.
func (h *ChannelHub) ForceEnd(sessionID, reason string) error {
	return h.Broadcast(sessionID, NewForcedEndEvent(sessionID, reason))
}

// DropParticipant severs one attachment at the transport level, as a
// network outage would. The participant's event stream closes without
// a clean leave.
func (h *ChannelHub) DropParticipant(sessionID, participantID string) {
	h.mu.RLock()
	topic, ok := h.topics[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	topic.mu.Lock()
	conn, ok := topic.members[participantID]
	if ok {
		delete(topic.members, participantID)
	}
	count := len(topic.members)
	topic.mu.Unlock()
	if !ok {
		return
	}
	conn.markClosed()
	topic.publish(NewParticipantCountEvent(sessionID, count))
}

// ParticipantCount reports how many attachments a topic currently has.
func (h *ChannelHub) ParticipantCount(sessionID string) int {
	h.mu.RLock()
	topic, ok := h.topics[sessionID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	topic.mu.RLock()
	defer topic.mu.RUnlock()
	return len(topic.members)
}

// FailNextDial makes the next Dial fail with err. Fault injection for
// connect-failure paths.
func (h *ChannelHub) FailNextDial(err error) {
	h.mu.Lock()
	h.dialErr = err
	h.mu.Unlock()
}

// SetDialDelay adds artificial connect latency to every Dial.
func (h *ChannelHub) SetDialDelay(d time.Duration) {
	h.mu.Lock()
	h.dialDelay = d
	h.mu.Unlock()
}

// RateLimitSends makes every Send fail with RateLimitedError carrying
// retryAfter. Zero disables the limit.
func (h *ChannelHub) RateLimitSends(retryAfter time.Duration) {
	h.mu.Lock()
	h.rateLimit = retryAfter
	h.mu.Unlock()
}

func (c *hubConn) Send(ctx context.Context, message string) error {
	select {
	case <-c.closed:
		return &ChannelUnavailableError{Cause: fmt.Errorf("connection closed")}
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.hub.mu.RLock()
	limit := c.hub.rateLimit
	c.hub.mu.RUnlock()
	if limit > 0 {
		return &RateLimitedError{RetryAfter: limit}
	}

	if !c.topic.publish(NewPeerMessageEvent(c.topic.sessionID, c.participantID, message)) {
		return fmt.Errorf("topic %s broadcast channel is full", c.topic.sessionID)
	}
	return nil
}

func (c *hubConn) Events() <-chan ChannelEvent {
	return c.events
}

// Close detaches the participant. Safe to call more than once.
func (c *hubConn) Close() error {
	c.topic.mu.Lock()
	if _, ok := c.topic.members[c.participantID]; ok {
		delete(c.topic.members, c.participantID)
	}
	count := len(c.topic.members)
	c.topic.mu.Unlock()

	c.markClosed()
	c.topic.publish(NewParticipantCountEvent(c.topic.sessionID, count))
	return nil
}

func (c *hubConn) markClosed() {
	c.closeOnce.Do(func() {
		close(c.closed)
		close(c.events)
	})
}
