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
	catalogdomain "github.com/smallbiznis/revenue/internal/catalog/domain"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/config"
	"github.com/smallbiznis/revenue/internal/dashboard/domain"
	dashboardservice "github.com/smallbiznis/revenue/internal/dashboard/service"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	userdomain "github.com/smallbiznis/revenue/internal/user/domain"
	"github.com/smallbiznis/revenue/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, *snowflake.Node, domain.Service) {
	t.Helper()
	dsn := fmt.Sprintf("file:dashboard_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&catalogdomain.ServiceDefinition{},
		&accountdomain.ServiceAccount{},
		&paymentdomain.Payment{},
	))

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)

	svc := dashboardservice.NewService(dashboardservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)),
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
	return db, node, svc
}

func seed(t *testing.T, db *gorm.DB, node *snowflake.Node) userdomain.User {
	t.Helper()
	user := userdomain.User{ID: node.Generate(), ExternalID: "kc-1", FirstName: "Amina", LastName: "Otieno", Email: "amina@example.com"}
	require.NoError(t, db.Create(&user).Error)

	services := []catalogdomain.ServiceDefinition{
		{ID: node.Generate(), Code: "WTR", Name: "Water Billing", Slug: "water-billing", BillingRules: datatypes.JSONMap{}, IsActive: true},
		{ID: node.Generate(), Code: "PRK", Name: "Parking Fees", Slug: "parking-fees", BillingRules: datatypes.JSONMap{}, IsActive: true},
	}
	require.NoError(t, db.Create(&services).Error)
	require.NoError(t, db.Model(&catalogdomain.ServiceDefinition{}).Create(map[string]any{
		"id": node.Generate().Int64(), "code": "WST", "name": "Waste", "slug": "waste", "billing_rules": "{}", "is_active": false,
	}).Error)

	account := accountdomain.ServiceAccount{
		ID: node.Generate(), UserID: user.ID, ServiceID: services[0].ID, ServiceCode: "WTR",
		AccountNumber: "WTR-0001", Status: accountdomain.StatusActive, Metadata: datatypes.JSONMap{},
	}
	require.NoError(t, db.Create(&account).Error)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	statuses := []paymentdomain.Status{
		paymentdomain.StatusCompleted,
		paymentdomain.StatusCompleted,
		paymentdomain.StatusPending,
		paymentdomain.StatusFailed,
	}
	for i, status := range statuses {
		at := base.Add(time.Duration(i) * time.Hour)
		p := paymentdomain.Payment{
			ID:               node.Generate(),
			TransactionID:    fmt.Sprintf("TRX-%02d", i),
			UserID:           user.ID,
			ServiceAccountID: account.ID,
			BillID:           node.Generate(),
			ServiceCode:      "WTR",
			Amount:           decimal.NewFromInt(220),
			Fee:              decimal.NewFromInt(50),
			Total:            decimal.NewFromInt(270),
			Currency:         "KES",
			Status:           status,
			Provider:         "sandbox",
			Details:          datatypes.JSONMap{},
			CreatedAt:        at,
			UpdatedAt:        at,
		}
		require.NoError(t, db.Create(&p).Error)
	}
	return user
}

func TestSummary(t *testing.T) {
	db, node, svc := setup(t)
	seed(t, db, node)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "540", summary.Totals.TotalRevenue.String())
	assert.Equal(t, "KES", summary.Totals.Currency)
	assert.Equal(t, int64(2), summary.Totals.ActiveServices)
	assert.Equal(t, int64(1), summary.Totals.ActiveAccounts)
	assert.Equal(t, int64(4), summary.Totals.Transactions)
	assert.Equal(t, int64(1), summary.Totals.PendingPayments)
	assert.Equal(t, int64(1), summary.Totals.FailedPayments)

	require.Len(t, summary.RecentCollections, 4)
	latest := summary.RecentCollections[0]
	assert.Equal(t, "TRX-03", latest.TransactionID)
	assert.Equal(t, "Amina Otieno", latest.PayerName)
	assert.Equal(t, "Water Billing", latest.ServiceName)
	assert.Equal(t, "WTR-0001", latest.AccountNumber)
}

func TestSummaryEmpty(t *testing.T) {
	_, _, svc := setup(t)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Totals.TotalRevenue.IsZero())
	assert.Empty(t, summary.RecentCollections)
}

func TestCollectionsFilterAndPaginate(t *testing.T) {
	db, node, svc := setup(t)
	seed(t, db, node)
	ctx := context.Background()

	completed, err := svc.Collections(ctx, domain.CollectionsRequest{Status: "completed"})
	require.NoError(t, err)
	assert.Len(t, completed.Collections, 2)

	first, err := svc.Collections(ctx, domain.CollectionsRequest{Pagination: pagination.Pagination{PageSize: 3}})
	require.NoError(t, err)
	require.Len(t, first.Collections, 3)
	require.True(t, first.PageInfo.HasMore)

	rest, err := svc.Collections(ctx, domain.CollectionsRequest{
		Pagination: pagination.Pagination{PageSize: 3, PageToken: first.PageInfo.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, rest.Collections, 1)
	assert.Equal(t, "TRX-00", rest.Collections[0].TransactionID)

	_, err = svc.Collections(ctx, domain.CollectionsRequest{Status: "refunded"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
