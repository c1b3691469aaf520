package auth

import (
	"github.com/smallbiznis/fintrack/internal/auth/repository"
	"github.com/smallbiznis/fintrack/internal/auth/service"
	"github.com/smallbiznis/fintrack/internal/auth/session"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(
		repository.New,
		service.New,
		session.NewManager,
	),
)
