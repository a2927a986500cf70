package settlement

import (
	"github.com/smallbiznis/revenue/internal/ratelimit"
	"github.com/smallbiznis/revenue/internal/settlement/domain"
	"github.com/smallbiznis/revenue/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(func(l *ratelimit.PaymentLimiter) domain.Locker { return l }),
	fx.Provide(service.NewService),
)
