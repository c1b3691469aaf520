package sessionstate

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fintrack/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("sessionstate",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Clock clock.Clock
	Redis *redis.Client `optional:"true"`
}

func New(p Params) Store {
	if p.Redis != nil {
		p.Log.Info("sessionstate.backend", zap.String("backend", "redis"))
		return NewRedisStore(p.Redis)
	}
	p.Log.Info("sessionstate.backend", zap.String("backend", "memory"))
	return NewMemoryStore(p.Clock)
}
