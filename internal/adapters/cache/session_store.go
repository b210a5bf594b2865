package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/floroz/winbid/internal/domain/registration"
)

// hash fields
const (
	fieldEmail        = "email"
	fieldPasswordHash = "password_hash"
	fieldFirstName    = "first_name"
	fieldLastName     = "last_name"
	fieldUsername     = "username"
	fieldPhone        = "phone_number"
	fieldOTPHash      = "otp_hash"
	fieldAttempts     = "attempts"
	fieldCreatedAt    = "created_at"
	fieldExpiresAt    = "expires_at"
)

// RedisSessionStore keeps registration sessions as Redis hashes with a key TTL,
// so pending sign-ups survive restarts and are shared between instances.
type RedisSessionStore struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewRedisSessionStore(client *redis.Client, logger *slog.Logger) *RedisSessionStore {
	return &RedisSessionStore{client: client, logger: logger, now: time.Now}
}

var _ registration.SessionStore = (*RedisSessionStore)(nil)

func sessionKey(token string) string {
	return sessionPrefix + token
}

func (s *RedisSessionStore) Store(ctx context.Context, token string, session *registration.Session, ttl time.Duration) error {
	now := s.now()
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	expiresAt := now.Add(ttl)
	key := sessionKey(token)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			fieldEmail:        session.Email,
			fieldPasswordHash: session.PasswordHash,
			fieldFirstName:    session.Profile.FirstName,
			fieldLastName:     session.Profile.LastName,
			fieldUsername:     session.Profile.Username,
			fieldPhone:        session.Profile.PhoneNumber,
			fieldOTPHash:      session.OTPHash,
			fieldAttempts:     session.VerificationAttempts,
			fieldCreatedAt:    createdAt.UnixNano(),
			fieldExpiresAt:    expiresAt.UnixNano(),
		})
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store registration session: %w", err)
	}
	session.ExpiresAt = expiresAt
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (*registration.Session, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load registration session: %w", err)
	}
	if len(fields) == 0 {
		return nil, registration.ErrSessionNotFound
	}

	session, err := decodeSession(token, fields)
	if err != nil {
		s.logger.Error("Discarding corrupt registration session", "error", err)
		_ = s.client.Del(ctx, sessionKey(token)).Err()
		return nil, registration.ErrSessionNotFound
	}
	if s.now().After(session.ExpiresAt) {
		return nil, registration.ErrSessionNotFound
	}
	return session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete registration session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Refresh(ctx context.Context, token, otpHash string, ttl time.Duration) error {
	key := sessionKey(token)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		if err := requireKey(ctx, tx, key); err != nil {
			return err
		}
		expiresAt := s.now().Add(ttl)
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldOTPHash, otpHash,
				fieldAttempts, 0,
				fieldExpiresAt, expiresAt.UnixNano(),
			)
			pipe.PExpire(ctx, key, ttl)
			return nil
		})
		return err
	})
}

func (s *RedisSessionStore) IncrementAttempts(ctx context.Context, token string) (int, error) {
	key := sessionKey(token)
	var attempts int64
	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		if err := requireKey(ctx, tx, key); err != nil {
			return err
		}
		var incr *redis.IntCmd
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.HIncrBy(ctx, key, fieldAttempts, 1)
			return nil
		})
		if err != nil {
			return err
		}
		attempts = incr.Val()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(attempts), nil
}

// watch runs fn under WATCH key, retrying when another client touched the key first
func (s *RedisSessionStore) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, registration.ErrSessionNotFound) {
			return err
		}
		return fmt.Errorf("registration session transaction failed: %w", err)
	}
	return fmt.Errorf("registration session transaction failed after %d attempts", maxTxRetries)
}

// requireKey stops the transaction when the key is gone so HSET never recreates it
func requireKey(ctx context.Context, tx *redis.Tx, key string) error {
	n, err := tx.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return registration.ErrSessionNotFound
	}
	return nil
}

func decodeSession(token string, f map[string]string) (*registration.Session, error) {
	attempts, err := strconv.Atoi(f[fieldAttempts])
	if err != nil {
		return nil, fmt.Errorf("attempts: %w", err)
	}
	createdAt, err := parseUnixNano(f[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	expiresAt, err := parseUnixNano(f[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	return &registration.Session{
		Token:        token,
		Email:        f[fieldEmail],
		PasswordHash: f[fieldPasswordHash],
		Profile: registration.Profile{
			FirstName:   f[fieldFirstName],
			LastName:    f[fieldLastName],
			Username:    f[fieldUsername],
			PhoneNumber: f[fieldPhone],
		},
		OTPHash:              f[fieldOTPHash],
		VerificationAttempts: attempts,
		CreatedAt:            createdAt,
		ExpiresAt:            expiresAt,
	}, nil
}

func parseUnixNano(v string) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}
