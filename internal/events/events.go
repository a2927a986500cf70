// Package events publishes payment lifecycle events for downstream consumers.
package events

import (
	"context"
	"time"
)

const (
	TypePaymentSettled = "payment.settled"
	TypePaymentFailed  = "payment.failed"
	TypePaymentPending = "payment.pending"
)

// Event is the JSON document written to the payments topic.
type Event struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	OccurredAt       time.Time `json:"occurred_at"`
	TransactionID    string    `json:"transaction_id"`
	BillID           string    `json:"bill_id,omitempty"`
	ServiceAccountID string    `json:"service_account_id,omitempty"`
	ServiceCode      string    `json:"service_code"`
	Amount           string    `json:"amount"`
	Fee              string    `json:"fee"`
	Total            string    `json:"total"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	Reason           string    `json:"reason,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
