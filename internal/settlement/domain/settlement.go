package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revenue/internal/identity"
)

const (
	MsgMissingPaymentInfo   = "missing required payment information"
	MsgMissingServiceFields = "missing service-specific required fields"
	MsgInvalidPayment       = "invalid payment request"
)

const (
	FieldServiceCode    = "serviceCode"
	FieldCalculatedCost = "calculatedCost"
	FieldServiceName    = "serviceName"
	FieldPaymentMethod  = "paymentMethod"
)

// TopLevelFields are required on every payment request, in reporting order.
var TopLevelFields = []string{FieldServiceCode, FieldCalculatedCost, FieldServiceName}

// Origin records where a payment request came from.
type Origin struct {
	IP        string
	UserAgent string
	RequestID string
}

// Request is the flat payment form: top-level fields plus the
// service-specific attributes, all in Body.
type Request struct {
	Payer  identity.Principal
	Body   map[string]any
	Origin Origin
}

// Result carries the stored Payment amounts unchanged.
type Result struct {
	TransactionID    string
	BillID           string
	BillNumber       string
	ServiceAccountID string
	AccountNumber    string
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	Total            decimal.Decimal
	Currency         string
	Status           string
	Timestamp        time.Time
}

type resultJSON struct {
	TransactionID    string      `json:"transactionId"`
	BillID           string      `json:"billId"`
	BillNumber       string      `json:"billNumber"`
	ServiceAccountID string      `json:"serviceAccountId"`
	AccountNumber    string      `json:"accountNumber"`
	Amount           json.Number `json:"amount"`
	Fee              json.Number `json:"fee"`
	Total            json.Number `json:"total"`
	Currency         string      `json:"currency"`
	Status           string      `json:"status"`
	Timestamp        time.Time   `json:"timestamp"`
}

// MarshalJSON writes money as JSON numbers with two decimals.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		TransactionID:    r.TransactionID,
		BillID:           r.BillID,
		BillNumber:       r.BillNumber,
		ServiceAccountID: r.ServiceAccountID,
		AccountNumber:    r.AccountNumber,
		Amount:           json.Number(r.Amount.StringFixed(2)),
		Fee:              json.Number(r.Fee.StringFixed(2)),
		Total:            json.Number(r.Total.StringFixed(2)),
		Currency:         r.Currency,
		Status:           r.Status,
		Timestamp:        r.Timestamp,
	})
}

type Service interface {
	Settle(ctx context.Context, req Request) (Result, error)
}

// Locker serializes settlement per (user, service code).
type Locker interface {
	TryLockSettlement(ctx context.Context, userID, serviceCode string) (string, bool, error)
	ReleaseSettlement(ctx context.Context, userID, serviceCode, token string) error
}

var (
	ErrValidation         = errors.New("validation_error")
	ErrSettlementInFlight = errors.New("settlement_in_progress")
)

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError aborts a settlement before any write or charge.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// MissingFields lists the fields reported as required, in order.
func (e *ValidationError) MissingFields() []string {
	out := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Code == "required" {
			out = append(out, f.Field)
		}
	}
	return out
}

// PersistenceError reports a charged payment whose records could not be
// written. Message names the failed write and never carries driver text.
type PersistenceError struct {
	TransactionID string
	Op            string
	Err           error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for %s: %v", e.Op, e.TransactionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Message is safe to show the payer.
func (e *PersistenceError) Message() string {
	op := e.Op
	if op == "" {
		op = "payment record"
	}
	if e.TransactionID == "" {
		return fmt.Sprintf("payment was charged but the %s could not be saved", op)
	}
	return fmt.Sprintf("payment %s was charged but the %s could not be saved", e.TransactionID, op)
}

func MissingFieldsError(message string, fields []string) *ValidationError {
	errs := make([]FieldError, 0, len(fields))
	for _, field := range fields {
		errs = append(errs, FieldError{Field: field, Code: "required", Message: field + " is required"})
	}
	return &ValidationError{Message: message, Fields: errs}
}

func InvalidFieldError(field, code, message string) *ValidationError {
	return &ValidationError{
		Message: MsgInvalidPayment,
		Fields:  []FieldError{{Field: field, Code: code, Message: message}},
	}
}
