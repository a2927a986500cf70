package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/user/domain"
	"github.com/smallbiznis/revenue/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:user_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, db
}

func TestUpsertIsIdempotent(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	profile := domain.Profile{ExternalID: "kp_1", FirstName: "Amina", Email: "amina@example.com"}

	first, err := svc.Upsert(ctx, profile)
	require.NoError(t, err)
	second, err := svc.Upsert(ctx, profile)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	var count int64
	require.NoError(t, db.Model(&domain.User{}).Where("external_id = ?", "kp_1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertRefreshesContactFields(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, domain.Profile{ExternalID: "kp_2", FirstName: "Juma", Phone: "+254711000000"})
	require.NoError(t, err)

	updated, err := svc.Upsert(ctx, domain.Profile{ExternalID: "kp_2", Email: " Juma@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "Juma", updated.FirstName)
	assert.Equal(t, "+254711000000", updated.Phone)
	assert.Equal(t, "juma@example.com", updated.Email)

	stored, err := svc.GetByExternalID(ctx, "kp_2")
	require.NoError(t, err)
	assert.Equal(t, "juma@example.com", stored.Email)
}

func TestUpsertConcurrentCallsCreateOneRow(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	var wg sync.WaitGroup
	ids := make([]snowflake.ID, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, err := svc.Upsert(ctx, domain.Profile{ExternalID: "kp_race"})
			ids[i], errs[i] = user.ID, err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	var count int64
	require.NoError(t, db.Model(&domain.User{}).Where("external_id = ?", "kp_race").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestUpsertRequiresExternalID(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.Upsert(context.Background(), domain.Profile{ExternalID: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidExternalID)

	_, err = svc.GetByExternalID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
