package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revenue/pkg/db/pagination"
)

const RecentCollectionsLimit = 10

type Totals struct {
	TotalRevenue    decimal.Decimal `json:"totalRevenue"`
	Currency        string          `json:"currency"`
	ActiveServices  int64           `json:"activeServices"`
	ActiveAccounts  int64           `json:"activeAccounts"`
	Transactions    int64           `json:"transactions"`
	PendingPayments int64           `json:"pendingPayments"`
	FailedPayments  int64           `json:"failedPayments"`
}

// Collection is one payment as shown to administrators.
type Collection struct {
	PaymentID     snowflake.ID    `json:"id"`
	TransactionID string          `json:"transactionId"`
	PayerName     string          `json:"payerName"`
	PayerEmail    string          `json:"payerEmail"`
	ServiceCode   string          `json:"serviceCode"`
	ServiceName   string          `json:"serviceName"`
	AccountNumber string          `json:"accountNumber"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`

	FirstName string `gorm:"column:payer_first_name" json:"-"`
	LastName  string `gorm:"column:payer_last_name" json:"-"`
}

type Summary struct {
	Totals            Totals       `json:"totals"`
	RecentCollections []Collection `json:"recentCollections"`
	GeneratedAt       time.Time    `json:"generatedAt"`
}

type CollectionsRequest struct {
	pagination.Pagination
	Status      string `form:"status"`
	ServiceCode string `form:"serviceCode"`
}

type CollectionsPage struct {
	Collections []Collection        `json:"collections"`
	PageInfo    pagination.PageInfo `json:"pageInfo"`
}

type Service interface {
	Summary(ctx context.Context) (Summary, error)
	Collections(ctx context.Context, req CollectionsRequest) (CollectionsPage, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidStatus    = errors.New("invalid_status")
)
