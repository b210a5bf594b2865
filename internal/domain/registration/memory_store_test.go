package registration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_StoreAndGet(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()

	session := &Session{Email: "a@example.com", OTPHash: "h1"}
	require.NoError(t, store.Store(ctx, "tok", session, 5*time.Minute))
	assert.Equal(t, clock.Now().Add(5*time.Minute), session.ExpiresAt)

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, "a@example.com", got.Email)

	// the returned value is a copy
	got.Email = "changed@example.com"
	again, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", again.Email)
}

func TestMemoryStore_Expiry(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "tok", &Session{Email: "a@example.com"}, 300*time.Second))

	clock.Advance(300 * time.Second)
	_, err := store.Get(ctx, "tok")
	assert.NoError(t, err, "session is present up to and including its expiry instant")

	clock.Advance(time.Second)
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, store.Len(), "expired session is evicted on read")
}

func TestMemoryStore_RefreshNeverRecreates(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()

	err := store.Refresh(ctx, "missing", "h", time.Minute)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Store(ctx, "tok", &Session{OTPHash: "h1"}, time.Minute))
	clock.Advance(2 * time.Minute)
	err = store.Refresh(ctx, "tok", "h2", time.Minute)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_RefreshResetsAttempts(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "tok", &Session{OTPHash: "h1"}, time.Minute))
	_, err := store.IncrementAttempts(ctx, "tok")
	require.NoError(t, err)
	n, err := store.IncrementAttempts(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	clock.Advance(30 * time.Second)
	require.NoError(t, store.Refresh(ctx, "tok", "h2", time.Minute))

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.OTPHash)
	assert.Equal(t, 0, got.VerificationAttempts)
	assert.Equal(t, clock.Now().Add(time.Minute), got.ExpiresAt)
}

func TestMemoryStore_IncrementAttemptsMissing(t *testing.T) {
	store := NewMemoryStore(nil)
	_, err := store.IncrementAttempts(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "tok", &Session{}, time.Minute))
	require.NoError(t, store.Delete(ctx, "tok"))
	require.NoError(t, store.Delete(ctx, "tok"))

	_, err := store.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "short", &Session{}, time.Minute))
	require.NoError(t, store.Store(ctx, "long", &Session{}, time.Hour))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())

	_, err := store.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestMemoryStore_ConcurrentAttempts(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, "tok", &Session{}, time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.IncrementAttempts(ctx, "tok")
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 50, got.VerificationAttempts)
}
