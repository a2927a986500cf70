package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/revenue/internal/account/domain"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"github.com/smallbiznis/revenue/pkg/db/pagination"
	"gorm.io/gorm"
)

// LastPayment is the latest state of one (user, service code) pair. Any
// part may be nil; an all-nil value means no history.
type LastPayment struct {
	ServiceAccount *accountdomain.ServiceAccount `json:"serviceAccount"`
	Payment        *paymentdomain.Payment        `json:"payment"`
	Reading        *accountdomain.MeterReading   `json:"reading"`
}

func (l LastPayment) Empty() bool {
	return l.ServiceAccount == nil && l.Payment == nil && l.Reading == nil
}

type Filter struct {
	pagination.Pagination
	ServiceCode string `form:"serviceCode"`
}

// Entry is one row of a citizen's billing history.
type Entry struct {
	PaymentID     snowflake.ID         `json:"id"`
	TransactionID string               `json:"transactionId"`
	ServiceCode   string               `json:"serviceCode"`
	ServiceName   string               `json:"serviceName"`
	AccountNumber string               `json:"accountNumber"`
	BillNumber    string               `json:"billNumber"`
	Amount        decimal.Decimal      `json:"amount"`
	Fee           decimal.Decimal      `json:"fee"`
	Total         decimal.Decimal      `json:"total"`
	Currency      string               `json:"currency"`
	Status        paymentdomain.Status `json:"status"`
	CreatedAt     time.Time            `json:"createdAt"`
	CompletedAt   *time.Time           `json:"completedAt,omitempty"`
}

type Page struct {
	Entries  []Entry             `json:"entries"`
	PageInfo pagination.PageInfo `json:"pageInfo"`
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	UserID      snowflake.ID
	ServiceCode string
	Cursor      *Cursor
	Limit       int
}

type Repository interface {
	LatestPayment(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*paymentdomain.Payment, error)
	ListEntries(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Entry, error)
}

type Service interface {
	LastPayment(ctx context.Context, userID snowflake.ID, serviceCode string) (LastPayment, error)
	BillingHistory(ctx context.Context, userID snowflake.ID, filter Filter) (Page, error)
}

var ErrInvalidPageToken = errors.New("invalid_page_token")
