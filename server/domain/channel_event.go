package domain

import "time"

type ChannelEventType int

const (
	EventPeerMessage ChannelEventType = iota
	EventPresenceChanged
	EventParticipantCount
	EventForcedEnd
	EventChannelDegraded
	EventChannelRestored
)

func (t ChannelEventType) String() string {
	switch t {
	case EventPeerMessage:
		return "peer_message"
	case EventPresenceChanged:
		return "presence_changed"
	case EventParticipantCount:
		return "participant_count"
	case EventForcedEnd:
		return "forced_end"
	case EventChannelDegraded:
		return "channel_degraded"
	case EventChannelRestored:
		return "channel_restored"
	default:
		return "unknown"
	}
}

// ChannelEvent is a typed event delivered on a session-scoped topic.
// Ordering is preserved within one handle, never across handles.
type ChannelEvent struct {
	Type         ChannelEventType
	SessionID    string
	Sender       string
	Message      string
	ProviderFree bool
	Participants int
	Reason       string
	Timestamp    time.Time
}

func NewPeerMessageEvent(sessionID, sender, message string) ChannelEvent {
	return ChannelEvent{
		Type:      EventPeerMessage,
		SessionID: sessionID,
		Sender:    sender,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewPresenceEvent(sessionID, advisorID string, free bool) ChannelEvent {
	return ChannelEvent{
		Type:         EventPresenceChanged,
		SessionID:    sessionID,
		Sender:       advisorID,
		ProviderFree: free,
		Timestamp:    time.Now(),
	}
}

func NewParticipantCountEvent(sessionID string, count int) ChannelEvent {
	return ChannelEvent{
		Type:         EventParticipantCount,
		SessionID:    sessionID,
		Participants: count,
		Timestamp:    time.Now(),
	}
}

func NewForcedEndEvent(sessionID, reason string) ChannelEvent {
	return ChannelEvent{
		Type:      EventForcedEnd,
		SessionID: sessionID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}
