package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revenue/pkg/db/option"
)

// Repository is a generic gorm-backed store for tables keyed by a snowflake
// primary key named id.
type Repository[T any] interface {
	Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	// CreateIfAbsent inserts resource unless a row already holds the same
	// values in conflictColumns, and reports whether it inserted.
	CreateIfAbsent(ctx context.Context, resource *T, conflictColumns ...string) (bool, error)
	Update(ctx context.Context, id snowflake.ID, changes map[string]any) error
}
