package domain

import "context"

// Transport is the raw bidirectional event stream the channel adapter
// wraps. The engine never talks to a Transport directly.
type Transport interface {
	// Dial attaches a participant to a session-scoped topic. It blocks
	// until the attachment is live or ctx is done.
	Dial(ctx context.Context, sessionID, participantID, displayName string) (TransportConn, error)
}

// TransportConn is one live attachment. Events() preserves transport
// order and is closed when the connection drops, for any reason.
type TransportConn interface {
	Send(ctx context.Context, message string) error
	Events() <-chan ChannelEvent
	Close() error
}
