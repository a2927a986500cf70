package email

import (
	"net/http"

	"github.com/smallbiznis/revenue/internal/config"
	"github.com/smallbiznis/revenue/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	log = log.Named("providers.email")
	switch cfg.Email.Provider {
	case "smtp":
		if cfg.Email.SMTPHost != "" {
			return NewSMTP(SMTPConfig{
				Host:     cfg.Email.SMTPHost,
				Port:     cfg.Email.SMTPPort,
				Username: cfg.Email.SMTPUsername,
				Password: cfg.Email.SMTPPassword,
				From:     cfg.Email.From,
			})
		}
		log.Warn("smtp email provider selected without SMTP_HOST, receipts disabled")
	case "resend":
		if cfg.Email.ResendAPIKey != "" {
			return NewResend(ResendConfig{
				APIKey: cfg.Email.ResendAPIKey,
				URL:    cfg.Email.ResendURL,
				From:   cfg.Email.From,
			}, tracing.WrapHTTPClient(&http.Client{Timeout: cfg.Gateway.Timeout}))
		}
		log.Warn("resend email provider selected without RESEND_API_KEY, receipts disabled")
	}
	return NoOpProvider{}
}
