package notification

import (
	"context"

	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(NewComposer),
	fx.Provide(NewDispatcher),
	fx.Provide(func(d *Dispatcher) paymentdomain.ReceiptNotifier { return d }),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			d.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return d.Stop(ctx)
		},
	})
}
