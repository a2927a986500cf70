package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is a payment provider that can take a charge and report on it.
type Gateway interface {
	Provider() string
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Status(ctx context.Context, gatewayReference string) (ChargeResult, error)
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type AdapterConfig struct {
	Provider       string
	BaseURL        string
	PublishableKey string
	SecretKey      string
	WebhookSecret  string
	Currency       string
	Timeout        time.Duration
	HTTPClient     *http.Client
	OnStateChange  func(provider, from, to string)
	OnCall         func(provider, operation, outcome string)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}

type ChargeRequest struct {
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Email     string
	Phone     string
	FirstName string
	LastName  string
	Narrative string
}

type ChargeResult struct {
	GatewayReference string
	Status           Status
	Reason           string
	Raw              map[string]any
}

// GatewayError reports a rejected or failed call to the payment provider.
type GatewayError struct {
	Provider   string
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s failed (%d): %s", e.Provider, e.Operation, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Operation, msg)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}
