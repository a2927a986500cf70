package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payment is one settlement attempt against a bill.
type Payment struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	TransactionID    string            `gorm:"type:text;not null;uniqueIndex" json:"transaction_id"`
	UserID           snowflake.ID      `gorm:"not null;index" json:"user_id"`
	ServiceAccountID snowflake.ID      `gorm:"not null;index" json:"service_account_id"`
	BillID           snowflake.ID      `gorm:"not null;index" json:"bill_id"`
	ServiceCode      string            `gorm:"type:text;not null;index" json:"service_code"`
	Amount           decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"amount"`
	Fee              decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"fee"`
	Total            decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"total"`
	Currency         string            `gorm:"type:text;not null" json:"currency"`
	Status           Status            `gorm:"type:text;not null;index" json:"status"`
	PaymentMethod    string            `gorm:"type:text;not null" json:"payment_method"`
	Provider         string            `gorm:"type:text;not null" json:"provider"`
	GatewayReference string            `gorm:"type:text;index" json:"gateway_reference,omitempty"`
	Details          datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"details"`
	FailureReason    string            `gorm:"type:text" json:"failure_reason,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	FailedAt         *time.Time        `json:"failed_at,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// EventRecord stores each gateway webhook once per (provider, provider_event_id).
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event" json:"provider"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event" json:"provider_event_id"`
	EventType       string         `gorm:"type:text;not null" json:"event_type"`
	Reference       string         `gorm:"type:text;not null;index" json:"reference"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
)

// PaymentEvent is the canonical webhook event parsed by gateway adapters.
// Reference is our transaction id echoed back by the gateway; GatewayReference
// is the gateway's own id for the charge.
type PaymentEvent struct {
	Provider         string
	ProviderEventID  string
	Type             string
	Reference        string
	GatewayReference string
	Reason           string
	OccurredAt       time.Time
	RawPayload       []byte
}
