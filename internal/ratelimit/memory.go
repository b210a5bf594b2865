package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

type window struct {
	count     int64
	expiresAt time.Time
}

// MemoryLimiter keeps windows in process memory.
// Limits are per instance, so a horizontally scaled deployment should use the Redis limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type MemoryOption func(*MemoryLimiter)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLimiter) Check(_ context.Context, key string, max int, d time.Duration) (Result, error) {
	if max <= 0 || d <= 0 {
		return Result{}, errors.New("rate limit max and window must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = &window{expiresAt: now.Add(d)}
		l.windows[key] = w
	}
	w.count++

	return Result{
		Allowed:   w.count <= int64(max),
		Remaining: remaining(max, w.count),
		ResetAt:   w.expiresAt,
	}, nil
}

// Sweep drops expired windows and returns how many were removed
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if now.After(w.expiresAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Len is the number of live and expired-but-unswept windows
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
