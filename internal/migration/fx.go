package migration

import (
	"context"

	catalogdomain "github.com/smallbiznis/revenue/internal/catalog/domain"
	"github.com/smallbiznis/revenue/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(lc fx.Lifecycle, conn *gorm.DB, cfg config.Config, billing *config.BillingConfigHolder, catalogSvc catalogdomain.Service, log *zap.Logger) {
		log = log.Named("migration")
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := Migrate(conn.WithContext(ctx), cfg.DBType); err != nil {
					return err
				}
				inserted, err := catalogSvc.Seed(ctx, billing.Get().Services)
				if err != nil {
					return err
				}
				log.Info("schema ready", zap.String("type", cfg.DBType), zap.Int("seeded_services", inserted))
				return nil
			},
		})
	}),
)
