//go:build integration

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"threadhub/internal/ratelimit"
	"threadhub/pkg/testutil/containers"
)

func TestRedisLimiterEnforcesLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	client := containers.StartRedis(t)
	ctx := context.Background()

	limiter := ratelimit.NewRedisLimiter(client, 3, time.Hour)

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.1:/api/auth/login")
		require.NoError(t, err)
		require.True(t, allowed, "attempt %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "10.0.0.1:/api/auth/login")
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestRedisLimiterKeysAreIndependent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	client := containers.StartRedis(t)
	ctx := context.Background()

	limiter := ratelimit.NewRedisLimiter(client, 1, time.Hour)

	allowed, err := limiter.Allow(ctx, "10.0.0.1:/api/auth/login")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "10.0.0.1:/api/auth/login")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "10.0.0.2:/api/auth/login")
	require.NoError(t, err)
	require.True(t, allowed)
}
