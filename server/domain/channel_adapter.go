package domain

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChannelPolicy bounds how long the adapter spends establishing and
// re-establishing transport attachments.
type ChannelPolicy struct {
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
}

func DefaultChannelPolicy() ChannelPolicy {
	return ChannelPolicy{
		ConnectTimeout:    10 * time.Second,
		ReconnectAttempts: 5,
		ReconnectBackoff:  time.Second,
	}
}

// ChannelAdapter wraps a Transport and hands out session-scoped
// handles with one ordered event stream each. Sends are never retried
// behind the caller's back; rate limits and outages surface as errors.
type ChannelAdapter struct {
	transport Transport
	policy    ChannelPolicy
	log       *logrus.Entry
}

func NewChannelAdapter(transport Transport, policy ChannelPolicy, log *logrus.Entry) *ChannelAdapter {
	return &ChannelAdapter{
		transport: transport,
		policy:    policy,
		log:       log,
	}
}

// ChannelHandle is one participant's attachment to a session topic.
// Its event stream closes when the handle is left, or when the
// transport is lost past the reconnect budget; only the latter happens
// without the owner asking for it.
type ChannelHandle struct {
	ID            string
	SessionID     string
	ParticipantID string
	DisplayName   string

	adapter *ChannelAdapter
	out     chan ChannelEvent
	done    chan struct{}
	once    sync.Once

	mu   sync.Mutex
	conn TransportConn
}

// Join attaches a participant within the bounded connect timeout.
func (a *ChannelAdapter) Join(ctx context.Context, sessionID, participantID, displayName string) (*ChannelHandle, error) {
	dialCtx, cancel := context.WithTimeout(ctx, a.policy.ConnectTimeout)
	defer cancel()

	conn, err := a.transport.Dial(dialCtx, sessionID, participantID, displayName)
	if err != nil {
		return nil, &ChannelUnavailableError{Cause: err}
	}

	h := &ChannelHandle{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		DisplayName:   displayName,
		adapter:       a,
		out:           make(chan ChannelEvent, hubEventBuffer),
		done:          make(chan struct{}),
		conn:          conn,
	}
	go h.pump(conn)
	return h, nil
}

// Events is the ordered stream of typed events for this handle.
func (h *ChannelHandle) Events() <-chan ChannelEvent {
	return h.out
}

// Send forwards one message over the live connection. A rate-limit
// signal from the transport comes back as RateLimitedError; a lost
// connection as ChannelUnavailableError. Nothing is queued.
func (h *ChannelHandle) Send(ctx context.Context, message string) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return &ChannelUnavailableError{}
	}
	return conn.Send(ctx, message)
}

// Leave detaches the participant. Idempotent: repeat calls and calls
// on an already-lost handle are no-ops.
func (h *ChannelHandle) Leave() {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
}

func (h *ChannelHandle) pump(conn TransportConn) {
	defer close(h.out)

	for {
		if !h.drain(conn) {
			return
		}
		// Transport dropped underneath us; try to get it back before
		// giving up on the handle.
		h.emit(ChannelEvent{Type: EventChannelDegraded, SessionID: h.SessionID, Timestamp: time.Now()})
		next, ok := h.redial()
		if !ok {
			return
		}
		conn = next
		h.emit(ChannelEvent{Type: EventChannelRestored, SessionID: h.SessionID, Timestamp: time.Now()})
	}
}

// drain forwards events until the connection drops. Returns false when
// the handle itself was left.
func (h *ChannelHandle) drain(conn TransportConn) bool {
	for {
		select {
		case <-h.done:
			return false
		case ev, ok := <-conn.Events():
			if !ok {
				select {
				case <-h.done:
					return false
				default:
					return true
				}
			}
			if !h.emit(ev) {
				return false
			}
		}
	}
}

func (h *ChannelHandle) emit(ev ChannelEvent) bool {
	select {
	case h.out <- ev:
		return true
	case <-h.done:
		return false
	}
}

// redial retries the transport with linear backoff, at most
// ReconnectAttempts times.
func (h *ChannelHandle) redial() (TransportConn, bool) {
	a := h.adapter
	for attempt := 1; attempt <= a.policy.ReconnectAttempts; attempt++ {
		select {
		case <-h.done:
			return nil, false
		case <-time.After(time.Duration(attempt) * a.policy.ReconnectBackoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.policy.ConnectTimeout)
		conn, err := a.transport.Dial(ctx, h.SessionID, h.ParticipantID, h.DisplayName)
		cancel()
		if err == nil {
			h.mu.Lock()
			left := h.conn == nil && h.isDone()
			if !left {
				h.conn = conn
			}
			h.mu.Unlock()
			if left {
				conn.Close()
				return nil, false
			}
			return conn, true
		}
		if a.log != nil {
			a.log.WithFields(logrus.Fields{
				"session_id": h.SessionID,
				"attempt":    attempt,
			}).WithError(err).Warn("channel reconnect attempt failed")
		}
	}

	h.mu.Lock()
	h.conn = nil
	h.mu.Unlock()
	return nil, false
}

func (h *ChannelHandle) isDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
