package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket state is a hash of {tokens, ts}. Redis TIME is the clock so
// every instance refills against the same source. The reply is
// {allowed, tokens, retry_after_ms}; tokens is a string because Lua numbers
// are truncated to integers on the way out.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = (t[1] * 1000) + math.floor(t[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil(((1 - tokens) / rate) * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), wait}
`

var (
	ErrInvalidLimit  = errors.New("rate limit rate and burst must be positive")
	ErrEmptyKey      = errors.New("rate limit key is empty")
	errInvalidScript = errors.New("invalid rate limit script reply")
)

// TokenBucket is a Redis-backed bucket with a fixed rate and burst. Each
// key gets its own bucket.
type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
	rate   float64
	burst  int
	ttl    time.Duration
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client redis.Scripter, rate float64, burst int) (*TokenBucket, error) {
	if rate <= 0 || burst <= 0 {
		return nil, ErrInvalidLimit
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		rate:   rate,
		burst:  burst,
		ttl:    bucketTTL(rate, burst),
	}, nil
}

func (t *TokenBucket) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	reply, err := t.script.Run(ctx, t.client, []string{key}, t.rate, t.burst, t.ttl.Milliseconds()).Slice()
	if err != nil {
		return nil, fmt.Errorf("token bucket %s: %w", key, err)
	}
	res, err := parseReply(reply)
	if err != nil {
		return nil, err
	}
	res.Limit = t.burst
	return res, nil
}

func parseReply(reply []any) (*Result, error) {
	if len(reply) != 3 {
		return nil, errInvalidScript
	}
	allowed, err := scriptNumber(reply[0])
	if err != nil {
		return nil, err
	}
	tokens, err := scriptNumber(reply[1])
	if err != nil {
		return nil, err
	}
	waitMS, err := scriptNumber(reply[2])
	if err != nil {
		return nil, err
	}
	return &Result{
		Allowed:    allowed == 1,
		Remaining:  int(math.Floor(tokens)),
		RetryAfter: time.Duration(waitMS) * time.Millisecond,
	}, nil
}

func scriptNumber(v any) (float64, error) {
	switch val := v.(type) {
	case int64:
		return float64(val), nil
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, errInvalidScript
		}
		return parsed, nil
	default:
		return 0, errInvalidScript
	}
}

// bucketTTL keeps idle buckets around for twice the time a full refill
// takes, so a returning client cannot reset its budget by waiting briefly.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil((float64(burst) / rate) * 2)
	return time.Duration(math.Max(seconds, 1)) * time.Second
}
