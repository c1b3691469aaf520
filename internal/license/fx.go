package license

import (
	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	"github.com/smallbiznis/fintrack/internal/config"
	"github.com/smallbiznis/fintrack/internal/license/client"
	"github.com/smallbiznis/fintrack/internal/license/domain"
	"github.com/smallbiznis/fintrack/internal/license/hardware"
	"github.com/smallbiznis/fintrack/internal/license/repository"
	"github.com/smallbiznis/fintrack/internal/license/service"
	"go.uber.org/fx"
)

var Module = fx.Module("license",
	fx.Provide(repository.Provide),
	fx.Provide(client.New),
	fx.Provide(provideHardwareSource),
	fx.Provide(provideKeySource),
	fx.Provide(service.New),
)

func provideHardwareSource(cfg config.Config) hardware.Source {
	return hardware.NewHostSource(cfg)
}

// The auth service owns license keys; the gate only reads them.
func provideKeySource(users authdomain.Service) domain.KeySource {
	return users
}
