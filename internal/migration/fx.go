package migration

import (
	"context"

	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	"github.com/smallbiznis/fintrack/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, auth authdomain.Service, log *zap.Logger) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		log = log.Named("migration")
		if err := RunMigrations(sqlDB, conn.Dialector.Name()); err != nil {
			return err
		}
		if version, dirty, err := Version(sqlDB, conn.Dialector.Name()); err == nil {
			log.Info("migration.applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
		}

		return EnsureBootstrapAdmin(context.Background(), auth, cfg.Bootstrap, log)
	}),
)
