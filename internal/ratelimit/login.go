package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fintrack/internal/config"
	"go.uber.org/zap"
)

const keyLoginAttempts = "fintrack:login:ip:"

// LoginLimiter throttles credential checks per client IP. A nil limiter
// allows everything.
type LoginLimiter struct {
	bucket *TokenBucket
}

// NewLoginLimiter returns nil when Redis is not configured or the limits are
// not positive.
func NewLoginLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *LoginLimiter {
	if client == nil {
		return nil
	}
	bucket, err := NewTokenBucket(client, cfg.RateLimit.LoginRate, cfg.RateLimit.LoginBurst)
	if err != nil {
		if log != nil {
			log.Warn("ratelimit.login.disabled", zap.Error(err))
		}
		return nil
	}
	return &LoginLimiter{bucket: bucket}
}

func (l *LoginLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *LoginLimiter) Allow(ctx context.Context, ip string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	return l.bucket.Allow(ctx, keyLoginAttempts+ip)
}
