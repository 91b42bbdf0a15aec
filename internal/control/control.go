package control

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

// Policy bounds the work a single turn may cause upstream.
type Policy struct {
	StreamWallTime  time.Duration
	RequestTimeout  time.Duration
	MaxMessageChars int
}

// DefaultPolicy returns the default turn policy.
func DefaultPolicy() Policy {
	return Policy{
		StreamWallTime:  120 * time.Second,
		RequestTimeout:  60 * time.Second,
		MaxMessageChars: 8000,
	}
}

// LimitType identifies which limit is reached.
type LimitType string

const (
	LimitMessageChars LimitType = "max_message_chars"
)

// LimitError indicates a turn limit was reached.
type LimitError struct {
	Type      LimitType
	Value     int64
	Threshold int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limit reached type=%s value=%d threshold=%d", e.Type, e.Value, e.Threshold)
}

// CheckMessageLength validates a user message against policy. A non-positive
// threshold disables the check.
func CheckMessageLength(p Policy, text string) error {
	if p.MaxMessageChars <= 0 {
		return nil
	}
	n := utf8.RuneCountInString(text)
	if n > p.MaxMessageChars {
		return &LimitError{Type: LimitMessageChars, Value: int64(n), Threshold: int64(p.MaxMessageChars)}
	}
	return nil
}

// StreamContext bounds a streaming turn by the policy's wall time.
func StreamContext(ctx context.Context, p Policy) (context.Context, context.CancelFunc) {
	return withLimit(ctx, p.StreamWallTime)
}

// RequestContext bounds a non-streaming request by the policy's timeout.
func RequestContext(ctx context.Context, p Policy) (context.Context, context.CancelFunc) {
	return withLimit(ctx, p.RequestTimeout)
}

func withLimit(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
