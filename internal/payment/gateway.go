package payment

import (
	"context"
	"net/http"

	"github.com/smallbiznis/revenue/internal/config"
	obsmetrics "github.com/smallbiznis/revenue/internal/observability/metrics"
	"github.com/smallbiznis/revenue/internal/observability/tracing"
	"github.com/smallbiznis/revenue/internal/payment/adapters"
	"github.com/smallbiznis/revenue/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type GatewayParams struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Registry   *adapters.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// NewGateway builds the configured gateway adapter once at startup.
func NewGateway(p GatewayParams) (domain.Gateway, error) {
	log := p.Log.Named("payment.gateway")
	cfg := p.Cfg.Gateway

	gw, err := p.Registry.NewAdapter(domain.AdapterConfig{
		Provider:       cfg.Provider,
		BaseURL:        cfg.BaseURL,
		PublishableKey: cfg.PublishableKey,
		SecretKey:      cfg.SecretKey,
		WebhookSecret:  cfg.WebhookSecret,
		Currency:       cfg.Currency,
		Timeout:        cfg.Timeout,
		HTTPClient:     tracing.WrapHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		OnStateChange: func(provider, from, to string) {
			log.Warn("gateway circuit state changed",
				zap.String("provider", provider),
				zap.String("from", from),
				zap.String("to", to),
			)
		},
		OnCall: func(provider, operation, outcome string) {
			p.ObsMetrics.RecordGatewayCall(context.Background(), provider, operation, outcome)
		},
	})
	if err != nil {
		return nil, err
	}
	if p.Cfg.IsProduction() && gw.Provider() == "sandbox" {
		log.Warn("sandbox payment gateway enabled in production")
	}
	log.Info("payment gateway ready", zap.String("provider", gw.Provider()))
	return gw, nil
}
