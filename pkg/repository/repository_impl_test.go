package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/revenue/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type zone struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	Code   string       `gorm:"uniqueIndex"`
	Active bool
}

func setupStore(t *testing.T) Repository[zone] {
	t.Helper()
	dsn := fmt.Sprintf("file:repository_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&zone{}))
	return ProvideStore[zone](db)
}

func TestCreateIfAbsentSkipsExisting(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	created, err := store.CreateIfAbsent(ctx, &zone{ID: 1, Code: "CBD", Active: true}, "code")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateIfAbsent(ctx, &zone{ID: 2, Code: "CBD"}, "code")
	require.NoError(t, err)
	assert.False(t, created)

	found, err := store.FindOne(ctx, &zone{Code: "CBD"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, snowflake.ID(1), found.ID)
	assert.True(t, found.Active)
}

func TestFindOneMissingIsNil(t *testing.T) {
	store := setupStore(t)
	found, err := store.FindOne(context.Background(), &zone{Code: "WESTLANDS"})
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestUpdateAndFindWithOptions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &zone{ID: 1, Code: "CBD", Active: true}))
	require.NoError(t, store.Create(ctx, &zone{ID: 2, Code: "UPPERHILL", Active: true}))

	require.NoError(t, store.Update(ctx, 2, map[string]any{"active": false}))
	assert.ErrorIs(t, store.Update(ctx, 2, nil), ErrNoChanges)

	active, err := store.Find(ctx, &zone{}, option.WithWhere("active = ?", true), option.WithOrder("code ASC"))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "CBD", active[0].Code)
}
