package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Gateway    paymentdomain.Gateway
	PaymentSvc paymentdomain.Service
}

type Service struct {
	log        *zap.Logger
	gateway    paymentdomain.Gateway
	paymentSvc paymentdomain.Service
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		gateway:    p.Gateway,
		paymentSvc: p.PaymentSvc,
	}
}

// IngestWebhook verifies, parses, and applies one gateway callback.
// Ignored and already processed events succeed so the gateway stops retrying.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.gateway == nil || s.gateway.Provider() != provider {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	if err := s.gateway.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("payment webhook rejected", zap.String("provider", provider), zap.Error(err))
		return err
	}

	event, err := s.gateway.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	err = s.paymentSvc.ProcessEvent(ctx, event)
	if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		s.log.Debug("duplicate payment webhook",
			zap.String("provider", provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return nil
	}
	return err
}
