package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRateLimited maps a 429 from the completions endpoint.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrCreditsExhausted maps a 402 from the completions endpoint.
	ErrCreditsExhausted = errors.New("llm: credits exhausted")
	// ErrNoBody means a successful response carried no body to stream.
	ErrNoBody = errors.New("llm: response has no body")
)

// StatusError is any other non-success response. Body is truncated
// diagnostic text from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm non-success status=%d body=%s", e.Code, e.Body)
}

// Error classes reported to the circuit breaker and the event log.
const (
	ClassRateLimited      = "rate_limited"
	ClassCreditsExhausted = "credits_exhausted"
	ClassUpstreamStatus   = "upstream_status"
	ClassNoBody           = "no_body"
	ClassCanceled         = "canceled"
	ClassTransport        = "transport"
)

// ErrorClass buckets an error returned by Client.
func ErrorClass(err error) string {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, ErrCreditsExhausted):
		return ClassCreditsExhausted
	case errors.As(err, &statusErr):
		return ClassUpstreamStatus
	case errors.Is(err, ErrNoBody):
		return ClassNoBody
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	default:
		return ClassTransport
	}
}

// UserMessage returns the short text shown to the candidate for err.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "Rate limit exceeded, please try again later."
	case errors.Is(err, ErrCreditsExhausted):
		return "AI credits exhausted, please add credits to continue."
	default:
		return "Failed to get AI response."
	}
}
