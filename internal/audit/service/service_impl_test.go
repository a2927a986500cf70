package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/revenue/internal/audit/domain"
	"github.com/smallbiznis/revenue/internal/audit/repository"
	auditcontext "github.com/smallbiznis/revenue/internal/auditcontext"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:audit_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, clk, db
}

func TestAuditLogUsesContextActorAndMasksSecrets(t *testing.T) {
	svc, _, db := setupService(t)

	ctx := auditcontext.WithActor(context.Background(), "admin", "idp|42")
	ctx = auditcontext.WithRequestID(ctx, "req-7")
	ctx = auditcontext.WithIPAddress(ctx, "10.0.0.1")
	target := "WTR"

	err := svc.AuditLog(ctx, "", nil, "service.update", "service", &target, map[string]any{
		"name":       "Water",
		"secret_key": "sk_live_abcdef",
	})
	require.NoError(t, err)

	var row auditdomain.AuditLog
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "admin", row.ActorType)
	require.NotNil(t, row.ActorID)
	assert.Equal(t, "idp|42", *row.ActorID)
	assert.Equal(t, "req-7", row.Metadata["request_id"])
	assert.Equal(t, "Water", row.Metadata["name"])
	assert.Equal(t, "****cdef", row.Metadata["secret_key"])
	require.NotNil(t, row.IPAddress)
	assert.Equal(t, "10.0.0.1", *row.IPAddress)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _, _ := setupService(t)
	err := svc.AuditLog(context.Background(), "", nil, " ", "service", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginates(t *testing.T) {
	svc, clk, _ := setupService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, "system", nil, "payment.settle", "payment", nil, nil))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	assert.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	assert.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
}

func TestListRejectsInvertedRange(t *testing.T) {
	svc, _, _ := setupService(t)
	start := time.Now()
	end := start.Add(-time.Hour)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
