package intasend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/revenue/internal/payment/adapters"
	"github.com/smallbiznis/revenue/internal/payment/domain"
	"github.com/smallbiznis/revenue/internal/resilience"
	"github.com/sony/gobreaker"
)

const (
	providerName    = "intasend"
	signatureHeader = "X-IntaSend-Signature"

	chargePath = "/api/v1/payment/mpesa-stk-push/"
	statusPath = "/api/v1/payment/status/"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Gateway, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if secret == "" || baseURL == "" {
		return nil, domain.ErrInvalidConfig
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "KES"
	}

	a := &Adapter{
		baseURL:        baseURL,
		secretKey:      secret,
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		webhookSecret:  strings.TrimSpace(cfg.WebhookSecret),
		currency:       currency,
		client:         client,
		retry:          resilience.DefaultRetryConfig(),
		onCall:         cfg.OnCall,
	}
	a.breaker = resilience.NewCircuitBreaker(providerName, func(name string, from, to gobreaker.State) {
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(name, from.String(), to.String())
		}
	})
	return a, nil
}

type Adapter struct {
	baseURL        string
	secretKey      string
	publishableKey string
	webhookSecret  string
	currency       string
	client         *http.Client
	breaker        *gobreaker.CircuitBreaker
	retry          resilience.RetryConfig
	onCall         func(provider, operation, outcome string)
}

func (a *Adapter) Provider() string { return providerName }

type chargeBody struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	APIRef      string `json:"api_ref"`
	Narrative   string `json:"narrative,omitempty"`
	PublicKey   string `json:"public_key,omitempty"`
}

type invoice struct {
	InvoiceID    string  `json:"invoice_id"`
	State        string  `json:"state"`
	APIRef       string  `json:"api_ref"`
	FailedReason *string `json:"failed_reason"`
	Value        any     `json:"value"`
	Currency     string  `json:"currency"`
	UpdatedAt    string  `json:"updated_at"`
}

type invoiceEnvelope struct {
	Invoice invoice `json:"invoice"`
}

func (a *Adapter) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	if !req.Amount.IsPositive() {
		return domain.ChargeResult{}, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = a.currency
	}

	body := chargeBody{
		Amount:      req.Amount.StringFixed(2),
		Currency:    currency,
		PhoneNumber: req.Phone,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		APIRef:      req.Reference,
		Narrative:   req.Narrative,
		PublicKey:   a.publishableKey,
	}

	var env invoiceEnvelope
	_, err := a.breaker.Execute(func() (interface{}, error) {
		return nil, a.post(ctx, chargePath, body, &env)
	})
	if err != nil {
		a.record("charge", "error")
		return domain.ChargeResult{}, a.wrap("charge", err)
	}
	a.record("charge", "ok")
	return toResult(env.Invoice), nil
}

func (a *Adapter) Status(ctx context.Context, gatewayReference string) (domain.ChargeResult, error) {
	gatewayReference = strings.TrimSpace(gatewayReference)
	if gatewayReference == "" {
		return domain.ChargeResult{}, domain.ErrInvalidTransaction
	}

	var env invoiceEnvelope
	err := resilience.RetryWithBackoff(ctx, a.retry, func() error {
		_, err := a.breaker.Execute(func() (interface{}, error) {
			return nil, a.post(ctx, statusPath, map[string]string{"invoice_id": gatewayReference}, &env)
		})
		if resilience.IsOpen(err) {
			return resilience.Permanent(err)
		}
		var gwErr *domain.GatewayError
		if errors.As(err, &gwErr) && gwErr.StatusCode >= 400 && gwErr.StatusCode < 500 {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		a.record("status", "error")
		return domain.ChargeResult{}, a.wrap("status", err)
	}
	a.record("status", "ok")
	return toResult(env.Invoice), nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return domain.ErrInvalidSignature
	}
	if !adapters.ValidSignature(a.webhookSecret, payload, headers.Get(signatureHeader)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.PaymentEvent, error) {
	var inv invoice
	if err := json.Unmarshal(payload, &inv); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	inv.InvoiceID = strings.TrimSpace(inv.InvoiceID)
	if inv.InvoiceID == "" || strings.TrimSpace(inv.APIRef) == "" {
		return nil, domain.ErrInvalidEvent
	}

	var eventType string
	switch mapState(inv.State) {
	case domain.StatusCompleted:
		eventType = domain.EventTypePaymentSucceeded
	case domain.StatusFailed:
		eventType = domain.EventTypePaymentFailed
	default:
		return nil, domain.ErrEventIgnored
	}

	occurredAt := time.Now().UTC()
	if parsed, err := time.Parse(time.RFC3339, inv.UpdatedAt); err == nil {
		occurredAt = parsed.UTC()
	}

	return &domain.PaymentEvent{
		Provider:         providerName,
		ProviderEventID:  inv.InvoiceID + ":" + strings.ToUpper(strings.TrimSpace(inv.State)),
		Type:             eventType,
		Reference:        strings.TrimSpace(inv.APIRef),
		GatewayReference: inv.InvoiceID,
		Reason:           failedReason(inv),
		OccurredAt:       occurredAt,
		RawPayload:       payload,
	}, nil
}

func (a *Adapter) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.secretKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return &domain.GatewayError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody, resp.Status),
		}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (a *Adapter) wrap(operation string, err error) error {
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		gwErr.Operation = operation
		return gwErr
	}
	if resilience.IsOpen(err) {
		return &domain.GatewayError{
			Provider:  providerName,
			Operation: operation,
			Message:   "circuit open",
			Err:       domain.ErrGatewayUnavailable,
		}
	}
	return &domain.GatewayError{Provider: providerName, Operation: operation, Err: err}
}

func (a *Adapter) record(operation, outcome string) {
	if a.onCall != nil {
		a.onCall(providerName, operation, outcome)
	}
}

func toResult(inv invoice) domain.ChargeResult {
	raw := map[string]any{
		"invoice_id": inv.InvoiceID,
		"state":      inv.State,
		"api_ref":    inv.APIRef,
	}
	return domain.ChargeResult{
		GatewayReference: inv.InvoiceID,
		Status:           mapState(inv.State),
		Reason:           failedReason(inv),
		Raw:              raw,
	}
}

func mapState(state string) domain.Status {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "COMPLETE", "COMPLETED":
		return domain.StatusCompleted
	case "FAILED", "CANCELLED", "CANCELED":
		return domain.StatusFailed
	default:
		return domain.StatusPending
	}
}

func failedReason(inv invoice) string {
	if inv.FailedReason == nil {
		return ""
	}
	return strings.TrimSpace(*inv.FailedReason)
}

func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Detail string `json:"detail"`
		Errors []struct {
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if len(payload.Errors) > 0 && payload.Errors[0].Detail != "" {
			return payload.Errors[0].Detail
		}
	}
	return fallback
}
