package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateRequest struct {
	// ID is optional; callers that link rows to the payment before inserting
	// it generate the id themselves.
	ID               snowflake.ID
	TransactionID    string
	UserID           snowflake.ID
	ServiceAccountID snowflake.ID
	BillID           snowflake.ID
	ServiceCode      string
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	Total            decimal.Decimal
	Currency         string
	PaymentMethod    string
	Provider         string
	GatewayReference string
	Details          map[string]any
}

// Outcome is a terminal gateway verdict for a pending payment.
type Outcome struct {
	Status           Status
	GatewayReference string
	Reason           string
	Source           string
}

type Service interface {
	// Create inserts a PENDING payment. db may be a transaction.
	Create(ctx context.Context, db *gorm.DB, req CreateRequest) (Payment, error)
	// Transition moves a PENDING payment to a terminal status and marks its
	// bill PAID on completion. It reports false when the payment already left
	// PENDING. db may be a transaction; no side effects leave the database.
	Transition(ctx context.Context, db *gorm.DB, payment *Payment, outcome Outcome) (bool, error)
	// Finalize runs the post-commit effects of a terminal payment.
	Finalize(ctx context.Context, payment Payment)
	// ApplyOutcome transitions the payment in its own transaction and finalizes it.
	ApplyOutcome(ctx context.Context, transactionID string, outcome Outcome) (Payment, bool, error)
	ProcessEvent(ctx context.Context, event *PaymentEvent) error
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (Payment, error)
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

// ReceiptNotifier is told about every payment that reaches COMPLETED.
type ReceiptNotifier interface {
	PaymentCompleted(ctx context.Context, payment Payment)
}

var (
	ErrNotFound              = errors.New("payment_not_found")
	ErrInvalidTransaction    = errors.New("invalid_transaction_id")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("payment_provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_payment_provider_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrGatewayUnavailable    = errors.New("payment_gateway_unavailable")
)
