package registration

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default SessionStore. Sessions live in this process only.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      now,
	}
}

func (s *MemoryStore) Store(_ context.Context, token string, session *Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	cp.Token = token
	cp.ExpiresAt = s.now().Add(ttl)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.sessions[token] = &cp
	session.ExpiresAt = cp.ExpiresAt
	return nil
}

// live returns the session or evicts it when expired. Caller holds mu.
func (s *MemoryStore) live(token string) (*Session, bool) {
	sess, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	if s.now().After(sess.ExpiresAt) {
		delete(s.sessions, token)
		return nil, false
	}
	return sess, true
}

func (s *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(token)
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *MemoryStore) Refresh(_ context.Context, token, otpHash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(token)
	if !ok {
		return ErrSessionNotFound
	}
	sess.OTPHash = otpHash
	sess.VerificationAttempts = 0
	sess.ExpiresAt = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) IncrementAttempts(_ context.Context, token string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(token)
	if !ok {
		return 0, ErrSessionNotFound
	}
	sess.VerificationAttempts++
	return sess.VerificationAttempts, nil
}

// Sweep removes expired sessions and returns how many were dropped
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
