package identity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aegis-admin/aegis/internal/shared"
)

func newTestThrottle(t *testing.T, maxAttempts int, window time.Duration) (*LoginThrottle, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLoginThrottle(client, maxAttempts, window), srv
}

func TestThrottleBlocksAfterLimit(t *testing.T) {
	throttle, _ := newTestThrottle(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, throttle.Allow(ctx, "jane@example.com", "10.0.0.1"))
		require.NoError(t, throttle.RecordFailure(ctx, "jane@example.com", "10.0.0.1"))
	}
	require.ErrorIs(t, throttle.Allow(ctx, "jane@example.com", "10.0.0.1"), shared.ErrTooManyAttempts)

	// Another address keeps its own counter.
	require.NoError(t, throttle.Allow(ctx, "jane@example.com", "10.0.0.2"))
}

func TestThrottleWindowExpires(t *testing.T) {
	throttle, srv := newTestThrottle(t, 1, time.Minute)
	ctx := context.Background()

	require.NoError(t, throttle.RecordFailure(ctx, "jane@example.com", "10.0.0.1"))
	require.ErrorIs(t, throttle.Allow(ctx, "jane@example.com", "10.0.0.1"), shared.ErrTooManyAttempts)

	srv.FastForward(2 * time.Minute)
	require.NoError(t, throttle.Allow(ctx, "jane@example.com", "10.0.0.1"))
}

func TestThrottleResetClearsCounter(t *testing.T) {
	throttle, _ := newTestThrottle(t, 1, time.Minute)
	ctx := context.Background()

	require.NoError(t, throttle.RecordFailure(ctx, "jane@example.com", "10.0.0.1"))
	require.ErrorIs(t, throttle.Allow(ctx, "jane@example.com", "10.0.0.1"), shared.ErrTooManyAttempts)

	require.NoError(t, throttle.Reset(ctx, "jane@example.com", "10.0.0.1"))
	require.NoError(t, throttle.Allow(ctx, "jane@example.com", "10.0.0.1"))
}

func TestNilThrottleAllowsEverything(t *testing.T) {
	var throttle *LoginThrottle
	ctx := context.Background()
	require.NoError(t, throttle.Allow(ctx, "jane@example.com", "10.0.0.1"))
	require.NoError(t, throttle.RecordFailure(ctx, "jane@example.com", "10.0.0.1"))
	require.NoError(t, throttle.Reset(ctx, "jane@example.com", "10.0.0.1"))
}
