package recurring

import (
	"context"

	"github.com/smallbiznis/fintrack/internal/config"
	"github.com/smallbiznis/fintrack/internal/recurring/domain"
	"github.com/smallbiznis/fintrack/internal/recurring/repository"
	"github.com/smallbiznis/fintrack/internal/recurring/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("recurring",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Invoke(startTicker),
)

// startTicker runs ProcessDue on RECURRING_PROCESS_INTERVAL. A zero interval
// leaves processing purely request-triggered.
func startTicker(lc fx.Lifecycle, cfg config.Config, svc *service.Service, log *zap.Logger) {
	interval := cfg.Recurring.ProcessInterval
	if interval <= 0 {
		return
	}

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			log.Info("recurring.ticker.started", zap.Duration("interval", interval))
			go svc.RunForever(ctx, interval)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
