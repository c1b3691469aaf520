package ratelimit

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fintrack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNilLockerRunsUnguarded(t *testing.T) {
	var locker *Locker
	called := false

	err := locker.WithLock(context.Background(), "recurring", time.Second, func(context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, locker.Enabled())
	assert.NoError(t, locker.Release(context.Background(), "recurring", "token"))
}

func TestNilLoginLimiterAllows(t *testing.T) {
	limiter := NewLoginLimiter(config.Config{RateLimit: config.RateLimitConfig{LoginRate: 1, LoginBurst: 1}}, nil, zap.NewNop())

	res, err := limiter.Allow(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.False(t, limiter.Enabled())
}

func TestNewTokenBucketRejectsBadLimits(t *testing.T) {
	_, err := NewTokenBucket(nil, 0, 5)
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = NewTokenBucket(nil, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestLoginLimiterDisabledOnBadLimits(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewLoginLimiter(config.Config{RateLimit: config.RateLimitConfig{LoginRate: 0, LoginBurst: 5}}, client, zap.NewNop())
	assert.Nil(t, limiter)
}

func TestParseReply(t *testing.T) {
	res, err := parseReply([]any{int64(0), "0.25", int64(3750)})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)
	assert.Equal(t, 3750*time.Millisecond, res.RetryAfter)

	res, err = parseReply([]any{int64(1), "3.9", int64(0)})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)

	_, err = parseReply([]any{int64(1)})
	assert.Error(t, err)
	_, err = parseReply([]any{int64(1), 2.5, int64(0)})
	assert.Error(t, err)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 50*time.Second, bucketTTL(0.2, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func redisForTest(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	client := redisForTest(t)
	locker := NewLocker(client)
	ctx := context.Background()
	key := "test:" + t.Name()

	err := locker.WithLock(ctx, key, 5*time.Second, func(ctx context.Context) error {
		_, ok, err := locker.TryLock(ctx, key, 5*time.Second)
		require.NoError(t, err)
		assert.False(t, ok)
		return locker.WithLock(ctx, key, time.Second, func(context.Context) error { return nil })
	})
	assert.True(t, errors.Is(err, ErrLockHeld))

	token, ok, err := locker.TryLock(ctx, key, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, locker.Release(ctx, key, token))
}

func TestTokenBucketThrottlesAfterBurst(t *testing.T) {
	client := redisForTest(t)
	bucket, err := NewTokenBucket(client, 0.1, 2)
	require.NoError(t, err)
	ctx := context.Background()
	key := "test:" + t.Name()
	t.Cleanup(func() { client.Del(ctx, key) })

	for i := 0; i < 2; i++ {
		res, err := bucket.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := bucket.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.Equal(t, 2, res.Limit)
}
