package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revenue/internal/account"
	"github.com/smallbiznis/revenue/internal/audit"
	"github.com/smallbiznis/revenue/internal/billing"
	"github.com/smallbiznis/revenue/internal/catalog"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/config"
	"github.com/smallbiznis/revenue/internal/events"
	"github.com/smallbiznis/revenue/internal/notification"
	"github.com/smallbiznis/revenue/internal/observability"
	"github.com/smallbiznis/revenue/internal/payment"
	"github.com/smallbiznis/revenue/internal/providers"
	"github.com/smallbiznis/revenue/internal/scheduler"
	"github.com/smallbiznis/revenue/internal/user"
	"github.com/smallbiznis/revenue/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by reconciliation
		audit.Module,
		events.Module,
		user.Module,
		catalog.Module,
		account.Module,
		billing.Module,
		payment.Module,
		providers.Module,
		notification.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
