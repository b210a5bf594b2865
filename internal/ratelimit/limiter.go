package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Result describes one Check call
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts attempts per key in fixed windows.
// Every call counts, including the ones that are rejected.
type Limiter interface {
	Check(ctx context.Context, key string, max int, window time.Duration) (Result, error)
}

// Policy is a named limit applied to one identity (IP, email)
type Policy struct {
	Name   string
	Max    int
	Window time.Duration
}

var (
	RegistrationPolicy = Policy{Name: "registration", Max: 5, Window: time.Hour}
	// OTPPolicy is shared by the initial OTP request and every resend
	OTPPolicy     = Policy{Name: "otp", Max: 3, Window: 10 * time.Minute}
	ContactPolicy = Policy{Name: "contact", Max: 5, Window: time.Hour}
)

// Key namespaces identity under the policy name
func (p Policy) Key(identity string) string {
	return p.Name + ":" + strings.ToLower(strings.TrimSpace(identity))
}

// Check runs the policy against l for identity
func (p Policy) Check(ctx context.Context, l Limiter, identity string) (Result, error) {
	return l.Check(ctx, p.Key(identity), p.Max, p.Window)
}

// ErrRateLimited matches any *LimitError with errors.Is
var ErrRateLimited = errors.New("rate limit exceeded")

// LimitError carries the reset time back to the HTTP layer
type LimitError struct {
	Policy  string
	ResetAt time.Time
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, try again after %s", e.Policy, e.ResetAt.Format(time.RFC3339))
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter is the whole number of seconds until the window resets, at least 1
func (e *LimitError) RetryAfter(now time.Time) int {
	secs := int(e.ResetAt.Sub(now).Seconds() + 0.999)
	if secs < 1 {
		return 1
	}
	return secs
}

func remaining(max int, count int64) int {
	r := max - int(count)
	if r < 0 {
		return 0
	}
	return r
}
