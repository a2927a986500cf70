package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/config"
	"github.com/smallbiznis/revenue/internal/migration"
	"github.com/smallbiznis/revenue/internal/observability"
	"github.com/smallbiznis/revenue/internal/scheduler"
	"github.com/smallbiznis/revenue/internal/server"
	"github.com/smallbiznis/revenue/pkg/db"
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

		// Schema and catalog seed run before the listener starts.
		migration.Module,

		// Citizen API, admin API, and the reconciliation loop.
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
