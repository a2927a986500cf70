package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/revenue/internal/account/domain"
	accountrepo "github.com/smallbiznis/revenue/internal/account/repository"
	billingdomain "github.com/smallbiznis/revenue/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/revenue/internal/catalog/domain"
	"github.com/smallbiznis/revenue/internal/history/domain"
	historyrepo "github.com/smallbiznis/revenue/internal/history/repository"
	historyservice "github.com/smallbiznis/revenue/internal/history/service"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"github.com/smallbiznis/revenue/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  domain.Service
	base time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:history_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.ServiceDefinition{},
		&accountdomain.ServiceAccount{},
		&accountdomain.MeterReading{},
		&billingdomain.Bill{},
		&paymentdomain.Payment{},
	))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	return &fixture{
		db:   db,
		node: node,
		base: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		svc: historyservice.NewService(historyservice.Params{
			DB:          db,
			Log:         zap.NewNop(),
			Repo:        historyrepo.Provide(),
			AccountRepo: accountrepo.Provide(),
		}),
	}
}

func (f *fixture) account(t *testing.T, userID snowflake.ID, code string) accountdomain.ServiceAccount {
	t.Helper()
	account := accountdomain.ServiceAccount{
		ID:            f.node.Generate(),
		UserID:        userID,
		ServiceID:     f.node.Generate(),
		ServiceCode:   code,
		AccountNumber: code + "-" + userID.String(),
		Status:        accountdomain.StatusActive,
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     f.base,
		UpdatedAt:     f.base,
	}
	require.NoError(t, f.db.Create(&account).Error)
	return account
}

func (f *fixture) payment(t *testing.T, account accountdomain.ServiceAccount, offset time.Duration, total int64) paymentdomain.Payment {
	t.Helper()
	at := f.base.Add(offset)
	payment := paymentdomain.Payment{
		ID:               f.node.Generate(),
		TransactionID:    fmt.Sprintf("TRX-%d", f.node.Generate()),
		UserID:           account.UserID,
		ServiceAccountID: account.ID,
		BillID:           f.node.Generate(),
		ServiceCode:      account.ServiceCode,
		Amount:           decimal.NewFromInt(total - 50),
		Fee:              decimal.NewFromInt(50),
		Total:            decimal.NewFromInt(total),
		Currency:         "KES",
		Status:           paymentdomain.StatusCompleted,
		Provider:         "sandbox",
		Details:          datatypes.JSONMap{},
		CompletedAt:      &at,
		CreatedAt:        at,
		UpdatedAt:        at,
	}
	require.NoError(t, f.db.Create(&payment).Error)
	return payment
}

func TestLastPaymentEmptyHistory(t *testing.T) {
	f := setup(t)

	got, err := f.svc.LastPayment(context.Background(), f.node.Generate(), "WTR")
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestLastPaymentAccountWithoutPayments(t *testing.T) {
	f := setup(t)
	userID := f.node.Generate()
	f.account(t, userID, "WTR")

	got, err := f.svc.LastPayment(context.Background(), userID, "wtr")
	require.NoError(t, err)
	require.NotNil(t, got.ServiceAccount)
	assert.Nil(t, got.Payment)
	assert.Nil(t, got.Reading)
}

func TestLastPaymentReturnsMostRecentWithReading(t *testing.T) {
	f := setup(t)
	userID := f.node.Generate()
	account := f.account(t, userID, "WTR")
	f.payment(t, account, 0, 270)
	latest := f.payment(t, account, 24*time.Hour, 340)

	reading := accountdomain.MeterReading{
		ID:               f.node.Generate(),
		ServiceAccountID: account.ID,
		PaymentID:        &latest.ID,
		CurrentReading:   35,
		Consumption:      10,
		ReadAt:           latest.CreatedAt,
	}
	require.NoError(t, f.db.Create(&reading).Error)

	got, err := f.svc.LastPayment(context.Background(), userID, "WTR")
	require.NoError(t, err)
	require.NotNil(t, got.Payment)
	assert.Equal(t, latest.TransactionID, got.Payment.TransactionID)
	require.NotNil(t, got.Reading)
	assert.Equal(t, int64(35), got.Reading.CurrentReading)
}

func TestBillingHistoryPaginatesNewestFirst(t *testing.T) {
	f := setup(t)
	userID := f.node.Generate()
	water := f.account(t, userID, "WTR")
	parking := f.account(t, userID, "PRK")
	other := f.account(t, f.node.Generate(), "WTR")

	var want []string
	for i := 0; i < 3; i++ {
		want = append(want, f.payment(t, water, time.Duration(i)*time.Hour, 270).TransactionID)
	}
	want = append(want, f.payment(t, parking, 5*time.Hour, 100).TransactionID)
	f.payment(t, other, 6*time.Hour, 500)

	ctx := context.Background()
	first, err := f.svc.BillingHistory(ctx, userID, domain.Filter{Pagination: pagination.Pagination{PageSize: 3}})
	require.NoError(t, err)
	require.Len(t, first.Entries, 3)
	assert.True(t, first.PageInfo.HasMore)
	assert.Equal(t, want[3], first.Entries[0].TransactionID)
	assert.Equal(t, "PRK", first.Entries[0].ServiceCode)

	second, err := f.svc.BillingHistory(ctx, userID, domain.Filter{
		Pagination: pagination.Pagination{PageSize: 3, PageToken: first.PageInfo.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	assert.False(t, second.PageInfo.HasMore)
	assert.Equal(t, want[0], second.Entries[0].TransactionID)

	onlyWater, err := f.svc.BillingHistory(ctx, userID, domain.Filter{ServiceCode: "wtr"})
	require.NoError(t, err)
	assert.Len(t, onlyWater.Entries, 3)
	for _, e := range onlyWater.Entries {
		assert.Equal(t, water.AccountNumber, e.AccountNumber)
	}
}

func TestBillingHistoryRejectsBadToken(t *testing.T) {
	f := setup(t)

	_, err := f.svc.BillingHistory(context.Background(), f.node.Generate(), domain.Filter{
		Pagination: pagination.Pagination{PageToken: "%%%"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}
