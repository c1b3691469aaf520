package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fintrack/internal/access"
	"github.com/smallbiznis/fintrack/internal/auth"
	"github.com/smallbiznis/fintrack/internal/clock"
	"github.com/smallbiznis/fintrack/internal/config"
	"github.com/smallbiznis/fintrack/internal/ledger"
	"github.com/smallbiznis/fintrack/internal/license"
	"github.com/smallbiznis/fintrack/internal/migration"
	"github.com/smallbiznis/fintrack/internal/observability"
	"github.com/smallbiznis/fintrack/internal/ratelimit"
	"github.com/smallbiznis/fintrack/internal/recurring"
	"github.com/smallbiznis/fintrack/internal/server"
	"github.com/smallbiznis/fintrack/internal/sessionstate"
	"github.com/smallbiznis/fintrack/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		sessionstate.Module,

		// Functional Domains
		auth.Module,
		license.Module,
		ledger.Module,
		recurring.Module,
		access.Module,
		migration.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
