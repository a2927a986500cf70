// Package sandbox is a deterministic gateway that completes every charge.
package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/revenue/internal/payment/adapters"
	"github.com/smallbiznis/revenue/internal/payment/domain"
)

const (
	providerName    = "sandbox"
	signatureHeader = "X-Sandbox-Signature"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Gateway, error) {
	return &Adapter{webhookSecret: strings.TrimSpace(cfg.WebhookSecret), onCall: cfg.OnCall}, nil
}

type Adapter struct {
	webhookSecret string
	onCall        func(provider, operation, outcome string)
}

func (a *Adapter) Provider() string { return providerName }

func (a *Adapter) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	if !req.Amount.IsPositive() {
		return domain.ChargeResult{}, domain.ErrInvalidAmount
	}
	if a.onCall != nil {
		a.onCall(providerName, "charge", "ok")
	}
	ref := "SBX-" + ulid.Make().String()
	return domain.ChargeResult{
		GatewayReference: ref,
		Status:           domain.StatusCompleted,
		Raw:              map[string]any{"reference": req.Reference, "gateway_reference": ref},
	}, nil
}

func (a *Adapter) Status(ctx context.Context, gatewayReference string) (domain.ChargeResult, error) {
	if strings.TrimSpace(gatewayReference) == "" {
		return domain.ChargeResult{}, domain.ErrInvalidTransaction
	}
	return domain.ChargeResult{GatewayReference: gatewayReference, Status: domain.StatusCompleted}, nil
}

// Verify accepts unsigned payloads when no webhook secret is configured.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return nil
	}
	if !adapters.ValidSignature(a.webhookSecret, payload, headers.Get(signatureHeader)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type event struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Reference        string `json:"reference"`
	GatewayReference string `json:"gateway_reference"`
	Reason           string `json:"reason"`
	OccurredAt       string `json:"occurred_at"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.PaymentEvent, error) {
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(ev.ID) == "" || strings.TrimSpace(ev.Reference) == "" {
		return nil, domain.ErrInvalidEvent
	}

	var eventType string
	switch strings.TrimSpace(ev.Type) {
	case "payment.succeeded":
		eventType = domain.EventTypePaymentSucceeded
	case "payment.failed":
		eventType = domain.EventTypePaymentFailed
	default:
		return nil, domain.ErrEventIgnored
	}

	occurredAt := time.Now().UTC()
	if parsed, err := time.Parse(time.RFC3339, ev.OccurredAt); err == nil {
		occurredAt = parsed.UTC()
	}

	return &domain.PaymentEvent{
		Provider:         providerName,
		ProviderEventID:  strings.TrimSpace(ev.ID),
		Type:             eventType,
		Reference:        strings.TrimSpace(ev.Reference),
		GatewayReference: strings.TrimSpace(ev.GatewayReference),
		Reason:           ev.Reason,
		OccurredAt:       occurredAt,
		RawPayload:       payload,
	}, nil
}
