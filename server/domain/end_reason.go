package domain

// EndReason records why a session left the non-terminal part of the
// state graph. Exactly one reason is stamped per session, first writer
// wins when triggers race.
type EndReason int

const (
	ReasonNone EndReason = iota
	ReasonUserEnded
	ReasonPeerEnded
	ReasonInactivity
	ReasonBalanceExhausted
	ReasonBackgrounded
	ReasonUserCancelled
	ReasonHoldExpired
	ReasonAdvisorUnavailable
	ReasonChannelFailed
	ReasonInsufficientBalance
	ReasonShutdown
)

func (r EndReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUserEnded:
		return "user_ended"
	case ReasonPeerEnded:
		return "peer_ended"
	case ReasonInactivity:
		return "inactivity"
	case ReasonBalanceExhausted:
		return "balance_exhausted"
	case ReasonBackgrounded:
		return "backgrounded"
	case ReasonUserCancelled:
		return "user_cancelled"
	case ReasonHoldExpired:
		return "hold_expired"
	case ReasonAdvisorUnavailable:
		return "advisor_unavailable"
	case ReasonChannelFailed:
		return "channel_failed"
	case ReasonInsufficientBalance:
		return "insufficient_balance"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
