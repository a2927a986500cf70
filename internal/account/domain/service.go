package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ResolveRequest struct {
	UserID      snowflake.ID
	ServiceID   snowflake.ID
	ServiceCode string
}

type RecordReadingRequest struct {
	AccountID snowflake.ID
	PaymentID *snowflake.ID
	Reading   int64
}

type Service interface {
	// ResolveOrCreate returns the account for (user, service code), creating
	// an ACTIVE one when absent. db may be a transaction.
	ResolveOrCreate(ctx context.Context, db *gorm.DB, req ResolveRequest) (ServiceAccount, bool, error)
	// RecordReading appends a water reading and stamps it on the account.
	RecordReading(ctx context.Context, db *gorm.DB, req RecordReadingRequest) (MeterReading, error)
	// TouchPayment stamps the latest payment on the account metadata.
	TouchPayment(ctx context.Context, db *gorm.DB, accountID snowflake.ID, transactionID string) error
	Get(ctx context.Context, id snowflake.ID) (ServiceAccount, error)
	FindForUser(ctx context.Context, userID snowflake.ID, code string) (*ServiceAccount, error)
}

var (
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidService = errors.New("invalid_service")
	ErrNotFound       = errors.New("service_account_not_found")
	ErrNotUsable      = errors.New("service_account_not_usable")
	ErrInvalidReading = errors.New("invalid_reading")
)
