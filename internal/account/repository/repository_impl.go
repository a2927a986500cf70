package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revenue/internal/account/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.ServiceAccount) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ServiceAccount, error) {
	var account domain.ServiceAccount
	err := db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindByUserAndCode(ctx context.Context, db *gorm.DB, userID snowflake.ID, code string) (*domain.ServiceAccount, error) {
	var account domain.ServiceAccount
	err := db.WithContext(ctx).
		Where("user_id = ? AND service_code = ?", userID, code).
		Order("created_at DESC").
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) UpdateMetadata(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata datatypes.JSONMap) error {
	return db.WithContext(ctx).
		Model(&domain.ServiceAccount{}).
		Where("id = ?", id).
		Update("metadata", metadata).Error
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB, status domain.Status) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.ServiceAccount{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

func (r *repo) InsertReading(ctx context.Context, db *gorm.DB, reading *domain.MeterReading) error {
	return db.WithContext(ctx).Create(reading).Error
}

func (r *repo) LatestReading(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*domain.MeterReading, error) {
	var reading domain.MeterReading
	err := db.WithContext(ctx).
		Where("service_account_id = ?", accountID).
		Order("read_at DESC, id DESC").
		First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reading, nil
}

func (r *repo) FindReadingByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*domain.MeterReading, error) {
	var reading domain.MeterReading
	err := db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("read_at DESC").
		First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reading, nil
}
