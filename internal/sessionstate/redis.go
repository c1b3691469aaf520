package sessionstate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	licensedomain "github.com/smallbiznis/fintrack/internal/license/domain"
)

const keyPrefix = "fintrack:session:license:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*licensedomain.SessionState, error) {
	raw, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state licensedomain.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		// unreadable entries are dropped and treated as absent
		_ = s.client.Del(ctx, keyPrefix+sessionID).Err()
		return nil, nil
	}
	return &state, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, state licensedomain.SessionState, ttl time.Duration) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+sessionID, raw, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, keyPrefix+sessionID).Err()
}
