package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revenue/internal/config"
	"github.com/smallbiznis/revenue/internal/tariff"
)

type ListRequest struct {
	ActiveOnly bool
}

type CreateRequest struct {
	Code          string         `json:"code"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	ServiceType   string         `json:"service_type"`
	BillingPeriod string         `json:"billing_period"`
	BillingRules  map[string]any `json:"billing_rules"`
	Zones         []string       `json:"zones"`
}

// UpdateRequest leaves nil fields untouched.
type UpdateRequest struct {
	Name          *string        `json:"name"`
	Description   *string        `json:"description"`
	ServiceType   *string        `json:"service_type"`
	BillingPeriod *string        `json:"billing_period"`
	BillingRules  map[string]any `json:"billing_rules"`
	Zones         []string       `json:"zones"`
	IsActive      *bool          `json:"is_active"`
}

// Quote is a priced request for an active service. Nothing is persisted.
type Quote struct {
	Service  ServiceDefinition
	Request  tariff.Request
	Amount   decimal.Decimal
	Fee      decimal.Decimal
	Total    decimal.Decimal
	Currency string
}

type Service interface {
	List(ctx context.Context, req ListRequest) ([]ServiceDefinition, error)
	GetByID(ctx context.Context, id string) (ServiceDefinition, error)
	GetByCode(ctx context.Context, code string) (ServiceDefinition, error)
	Create(ctx context.Context, req CreateRequest) (ServiceDefinition, error)
	Update(ctx context.Context, id string, req UpdateRequest) (ServiceDefinition, error)
	Deactivate(ctx context.Context, id string) (ServiceDefinition, error)
	// Seed inserts definitions whose code is not stored yet. Existing rows
	// keep any edits made through the admin API.
	Seed(ctx context.Context, seeds []config.ServiceSeed) (int, error)
	// Quote validates attrs for code and prices them. Missing attributes
	// surface as *tariff.MissingFieldsError.
	Quote(ctx context.Context, code string, attrs map[string]any) (Quote, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidRules     = errors.New("invalid_billing_rules")
	ErrCodeTaken        = errors.New("service_code_taken")
	ErrNotFound         = errors.New("service_not_found")
	ErrInactive         = errors.New("service_inactive")
	ErrZeroAmount       = errors.New("zero_amount")
	ErrNoFieldsToUpdate = errors.New("no_fields_to_update")
)
