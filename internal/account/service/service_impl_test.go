package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/revenue/internal/account/domain"
	"github.com/smallbiznis/revenue/internal/account/repository"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()
	dsn := fmt.Sprintf("file:account_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.ServiceAccount{}, &domain.MeterReading{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, db, node
}

func TestResolveOrCreateReusesAccount(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()
	req := domain.ResolveRequest{UserID: node.Generate(), ServiceID: node.Generate(), ServiceCode: "wtr"}

	first, created, err := svc.ResolveOrCreate(ctx, nil, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.StatusActive, first.Status)
	assert.True(t, strings.HasPrefix(first.AccountNumber, "WTR-"))
	assert.Len(t, first.AccountNumber, len("WTR-")+26)

	second, created, err := svc.ResolveOrCreate(ctx, nil, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&domain.ServiceAccount{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveOrCreateRejectsSuspended(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()
	req := domain.ResolveRequest{UserID: node.Generate(), ServiceID: node.Generate(), ServiceCode: "PRK"}

	account, _, err := svc.ResolveOrCreate(ctx, nil, req)
	require.NoError(t, err)
	require.NoError(t, db.Model(&domain.ServiceAccount{}).Where("id = ?", account.ID).Update("status", domain.StatusSuspended).Error)

	_, _, err = svc.ResolveOrCreate(ctx, nil, req)
	assert.ErrorIs(t, err, domain.ErrNotUsable)
}

func TestRecordReadingConsumption(t *testing.T) {
	svc, _, node := setupService(t)
	ctx := context.Background()
	account, _, err := svc.ResolveOrCreate(ctx, nil, domain.ResolveRequest{UserID: node.Generate(), ServiceID: node.Generate(), ServiceCode: "WTR"})
	require.NoError(t, err)

	first, err := svc.RecordReading(ctx, nil, domain.RecordReadingRequest{AccountID: account.ID, Reading: 25})
	require.NoError(t, err)
	assert.Nil(t, first.PreviousReading)
	assert.Equal(t, int64(25), first.Consumption)

	second, err := svc.RecordReading(ctx, nil, domain.RecordReadingRequest{AccountID: account.ID, Reading: 40})
	require.NoError(t, err)
	require.NotNil(t, second.PreviousReading)
	assert.Equal(t, int64(25), *second.PreviousReading)
	assert.Equal(t, int64(15), second.Consumption)

	// Lower readings are stored as reported.
	third, err := svc.RecordReading(ctx, nil, domain.RecordReadingRequest{AccountID: account.ID, Reading: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(-10), third.Consumption)

	stored, err := svc.Get(ctx, account.ID)
	require.NoError(t, err)
	// JSON columns decode numbers as json.Number.
	assert.Equal(t, json.Number("30"), stored.Metadata[domain.MetadataLastReading])
}

func TestTouchPayment(t *testing.T) {
	svc, _, node := setupService(t)
	ctx := context.Background()
	account, _, err := svc.ResolveOrCreate(ctx, nil, domain.ResolveRequest{UserID: node.Generate(), ServiceID: node.Generate(), ServiceCode: "BIZ"})
	require.NoError(t, err)

	require.NoError(t, svc.TouchPayment(ctx, nil, account.ID, "TRX-1"))
	stored, err := svc.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "TRX-1", stored.Metadata[domain.MetadataLastPaymentID])
	assert.Equal(t, "2026-04-01T10:00:00Z", stored.Metadata[domain.MetadataLastPaymentAt])

	err = svc.TouchPayment(ctx, nil, node.Generate(), "TRX-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
