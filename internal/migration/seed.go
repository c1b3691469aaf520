package migration

import (
	"context"
	"errors"

	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	"github.com/smallbiznis/fintrack/internal/config"
	"go.uber.org/zap"
)

// EnsureBootstrapAdmin creates the first administrator from
// BOOTSTRAP_ADMIN_USERNAME and BOOTSTRAP_ADMIN_PASSWORD. It does nothing
// once any user exists, so restarting with the variables still set is safe.
func EnsureBootstrapAdmin(ctx context.Context, auth authdomain.Service, cfg config.BootstrapConfig, log *zap.Logger) error {
	if cfg.AdminUsername == "" {
		return nil
	}
	if cfg.AdminPassword == "" {
		return errors.New("BOOTSTRAP_ADMIN_PASSWORD is required when BOOTSTRAP_ADMIN_USERNAME is set")
	}

	count, err := auth.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	user, err := auth.CreateUser(ctx, authdomain.CreateUserRequest{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		Role:     authdomain.RoleAdmin,
	})
	if err != nil {
		return err
	}
	log.Info("migration.bootstrap.admin_created", zap.String("username", user.Username))
	return nil
}
