package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revenue/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNoChanges = errors.New("repository_no_changes")

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]*T, error) {
	var out []*T
	if err := s.query(ctx, filter, opts...).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store[T]) FindOne(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error) {
	var out T
	err := s.query(ctx, filter, opts...).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s *store[T]) CreateIfAbsent(ctx context.Context, resource *T, conflictColumns ...string) (bool, error) {
	onConflict := clause.OnConflict{DoNothing: true}
	for _, col := range conflictColumns {
		onConflict.Columns = append(onConflict.Columns, clause.Column{Name: col})
	}
	res := s.db.WithContext(ctx).Clauses(onConflict).Create(resource)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *store[T]) Update(ctx context.Context, id snowflake.ID, changes map[string]any) error {
	if len(changes) == 0 {
		return ErrNoChanges
	}
	return s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(changes).Error
}

func (s *store[T]) query(ctx context.Context, filter *T, opts ...option.QueryOption) *gorm.DB {
	db := s.db.WithContext(ctx).Model(new(T))
	if filter != nil {
		db = db.Where(filter)
	}
	for _, opt := range opts {
		db = opt.Apply(db)
	}
	return db
}
