package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrSummaryNotFound    = errors.New("summary not found")
	ErrRatingNotFound     = errors.New("rating not found")
	ErrAlreadyRated       = errors.New("session already rated")
	ErrSessionExists      = errors.New("an active session already exists for this customer and advisor")
	ErrAdvisorUnavailable = errors.New("advisor unavailable")
	ErrInvalidRequest     = errors.New("invalid session request")
	ErrEngineClosed       = errors.New("engine is shut down")
)

// InsufficientBalanceError fails admission before any channel cost is
// incurred. MinimumRequired is the minimum-session floor in effect.
type InsufficientBalanceError struct {
	Shortfall       float64
	MinimumRequired float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: short %.2f of minimum %.2f", e.Shortfall, e.MinimumRequired)
}

// RateLimitedError surfaces a transport rate-limit signal. The caller
// decides whether and when to retry; the adapter never retries sends.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ChannelUnavailableError means the realtime transport could not be
// established or was lost past the reconnect budget.
type ChannelUnavailableError struct {
	Cause error
}

func (e *ChannelUnavailableError) Error() string {
	if e.Cause == nil {
		return "channel unavailable"
	}
	return fmt.Sprintf("channel unavailable: %v", e.Cause)
}

func (e *ChannelUnavailableError) Unwrap() error { return e.Cause }

// LedgerUnavailableError means the balance service could not settle or
// report; callers retry with the session id as idempotency key.
type LedgerUnavailableError struct {
	Cause error
}

func (e *LedgerUnavailableError) Error() string {
	if e.Cause == nil {
		return "ledger unavailable"
	}
	return fmt.Sprintf("ledger unavailable: %v", e.Cause)
}

func (e *LedgerUnavailableError) Unwrap() error { return e.Cause }
