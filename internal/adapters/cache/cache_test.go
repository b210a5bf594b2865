package cache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/winbid/internal/config"
	"github.com/floroz/winbid/internal/domain/registration"
	"github.com/floroz/winbid/internal/ratelimit"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func newSession() *registration.Session {
	return &registration.Session{
		Email:        "jo@example.com",
		PasswordHash: "$argon2id$hash",
		Profile: registration.Profile{
			FirstName: "Jo",
			LastName:  "Doe",
			Username:  "jo_doe",
		},
		OTPHash: "$2a$10$otp",
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestRedisSessionStore_RoundTrip(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisSessionStore(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	sess := newSession()
	require.NoError(t, store.Store(ctx, "tok", sess, 5*time.Minute))
	assert.False(t, sess.ExpiresAt.IsZero())

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, "jo@example.com", got.Email)
	assert.Equal(t, "jo_doe", got.Profile.Username)
	assert.Empty(t, got.Profile.PhoneNumber)
	assert.Equal(t, 0, got.VerificationAttempts)
	assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Millisecond)

	assert.Equal(t, 5*time.Minute, mr.TTL(sessionKey("tok")))

	require.NoError(t, store.Delete(ctx, "tok"))
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, registration.ErrSessionNotFound)
}

func TestRedisSessionStore_Expiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisSessionStore(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "tok", newSession(), 5*time.Minute))
	mr.FastForward(5*time.Minute + time.Second)

	_, err := store.Get(ctx, "tok")
	assert.ErrorIs(t, err, registration.ErrSessionNotFound)

	err = store.Refresh(ctx, "tok", "new", 5*time.Minute)
	assert.ErrorIs(t, err, registration.ErrSessionNotFound)
	_, err = store.IncrementAttempts(ctx, "tok")
	assert.ErrorIs(t, err, registration.ErrSessionNotFound)

	assert.False(t, mr.Exists(sessionKey("tok")), "expired session must not be recreated")
}

func TestRedisSessionStore_ExpiredByClock(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisSessionStore(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	require.NoError(t, store.Store(ctx, "tok", newSession(), 5*time.Minute))

	store.now = func() time.Time { return base.Add(5 * time.Minute) }
	_, err := store.Get(ctx, "tok")
	require.NoError(t, err, "expiry instant itself is still valid")

	store.now = func() time.Time { return base.Add(5*time.Minute + time.Nanosecond) }
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, registration.ErrSessionNotFound)
}

func TestRedisSessionStore_RefreshAndAttempts(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisSessionStore(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "tok", newSession(), 5*time.Minute))

	n, err := store.IncrementAttempts(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.IncrementAttempts(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mr.FastForward(4 * time.Minute)
	require.NoError(t, store.Refresh(ctx, "tok", "$2a$10$fresh", 5*time.Minute))
	assert.Equal(t, 5*time.Minute, mr.TTL(sessionKey("tok")))

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$fresh", got.OTPHash)
	assert.Equal(t, 0, got.VerificationAttempts)
}

func TestRedisSessionStore_ConcurrentAttempts(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisSessionStore(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, "tok", newSession(), 5*time.Minute))

	const workers = 4
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.IncrementAttempts(ctx, "tok")
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.LessOrEqual(t, got.VerificationAttempts, workers)
	assert.Positive(t, got.VerificationAttempts)
}

func TestRedisSessionStore_CorruptEntry(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisSessionStore(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mr.HSet(sessionKey("bad"), fieldEmail, "x@example.com")
	mr.HSet(sessionKey("bad"), fieldAttempts, "many")

	_, err := store.Get(context.Background(), "bad")
	assert.ErrorIs(t, err, registration.ErrSessionNotFound)
	assert.False(t, mr.Exists(sessionKey("bad")))
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter := NewRedisLimiter(client)
	ctx := context.Background()
	policy := ratelimit.Policy{Name: "otp", Max: 3, Window: 10 * time.Minute}

	for i := 1; i <= 3; i++ {
		res, err := policy.Check(ctx, limiter, "Jo@Example.com")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "attempt %d", i)
		assert.Equal(t, 3-i, res.Remaining)
	}

	res, err := policy.Check(ctx, limiter, "jo@example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), res.ResetAt, 2*time.Second)

	// window is fixed: later hits do not extend it
	mr.FastForward(9 * time.Minute)
	_, err = policy.Check(ctx, limiter, "jo@example.com")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(rateLimitPrefix+policy.Key("jo@example.com")))

	mr.FastForward(time.Minute + time.Second)
	res, err = policy.Check(ctx, limiter, "jo@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client)
	ctx := context.Background()

	res, err := limiter.Check(ctx, "registration:10.0.0.1", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Check(ctx, "registration:10.0.0.2", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Check(ctx, "registration:10.0.0.1", 1, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRedisLimiter_MissingExpiryIsRepaired(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter := NewRedisLimiter(client)

	require.NoError(t, mr.Set(rateLimitPrefix+"contact:a@b.c", "2"))

	res, err := limiter.Check(context.Background(), "contact:a@b.c", 5, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, time.Hour, mr.TTL(rateLimitPrefix+"contact:a@b.c"))
}

func TestRedisLimiter_RejectsBadPolicy(t *testing.T) {
	client, _ := setupTestRedis(t)
	_, err := NewRedisLimiter(client).Check(context.Background(), "k", 0, time.Minute)
	assert.Error(t, err)
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	_, err := NewRedisLimiter(client).Check(context.Background(), "k", 1, time.Minute)
	assert.Error(t, err)
}
