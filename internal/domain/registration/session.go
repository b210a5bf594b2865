package registration

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned for missing and expired sessions alike
var ErrSessionNotFound = errors.New("registration session not found")

// Profile is the user data collected at sign-up and applied on verification
type Profile struct {
	FirstName   string
	LastName    string
	Username    string
	PhoneNumber string
}

// Session holds a pending registration until the emailed code is confirmed
type Session struct {
	Token                string
	Email                string
	PasswordHash         string
	Profile              Profile
	OTPHash              string
	VerificationAttempts int
	CreatedAt            time.Time
	ExpiresAt            time.Time
}

// SessionStore keeps sessions for a bounded time.
// Implementations must never resurrect a session from Refresh or IncrementAttempts.
type SessionStore interface {
	// Store sets ExpiresAt to now+ttl and saves the session under token
	Store(ctx context.Context, token string, session *Session, ttl time.Duration) error

	// Get returns ErrSessionNotFound for unknown or expired tokens
	Get(ctx context.Context, token string) (*Session, error)

	Delete(ctx context.Context, token string) error

	// Refresh swaps the OTP hash, clears attempts and extends the expiry
	Refresh(ctx context.Context, token, otpHash string, ttl time.Duration) error

	// IncrementAttempts returns the new attempt count
	IncrementAttempts(ctx context.Context, token string) (int, error)
}
