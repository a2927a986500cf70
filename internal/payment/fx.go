package payment

import (
	"github.com/smallbiznis/revenue/internal/payment/adapters"
	"github.com/smallbiznis/revenue/internal/payment/adapters/intasend"
	"github.com/smallbiznis/revenue/internal/payment/adapters/sandbox"
	"github.com/smallbiznis/revenue/internal/payment/repository"
	paymentservice "github.com/smallbiznis/revenue/internal/payment/service"
	"github.com/smallbiznis/revenue/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			intasend.NewFactory(),
			sandbox.NewFactory(),
		)
	}),
	fx.Provide(NewGateway),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
