package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegis-admin/aegis/internal/shared"
)

// LoginThrottle counts failed login attempts per email and client address in
// Redis and rejects further attempts once the limit is hit, until the window
// expires.
type LoginThrottle struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewLoginThrottle constructs a LoginThrottle.
func NewLoginThrottle(client *redis.Client, maxAttempts int, window time.Duration) *LoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginThrottle{client: client, maxAttempts: maxAttempts, window: window}
}

// Allow returns ErrTooManyAttempts when the counter is at the limit. A nil
// throttle allows everything.
func (t *LoginThrottle) Allow(ctx context.Context, email, addr string) error {
	if t == nil || t.client == nil {
		return nil
	}
	count, err := t.client.Get(ctx, t.key(email, addr)).Int()
	if err != nil && err != redis.Nil {
		return err
	}
	if count >= t.maxAttempts {
		return shared.ErrTooManyAttempts
	}
	return nil
}

// RecordFailure bumps the counter and arms the expiry window on first
// failure.
func (t *LoginThrottle) RecordFailure(ctx context.Context, email, addr string) error {
	if t == nil || t.client == nil {
		return nil
	}
	key := t.key(email, addr)
	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, t.window)
	_, err := pipe.Exec(ctx)
	return err
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, email, addr string) error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Del(ctx, t.key(email, addr)).Err()
}

func (t *LoginThrottle) key(email, addr string) string {
	return fmt.Sprintf("login:attempts:%s:%s", email, addr)
}
