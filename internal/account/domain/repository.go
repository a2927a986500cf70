package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *ServiceAccount) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ServiceAccount, error)
	FindByUserAndCode(ctx context.Context, db *gorm.DB, userID snowflake.ID, code string) (*ServiceAccount, error)
	UpdateMetadata(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata datatypes.JSONMap) error
	CountByStatus(ctx context.Context, db *gorm.DB, status Status) (int64, error)

	InsertReading(ctx context.Context, db *gorm.DB, reading *MeterReading) error
	LatestReading(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*MeterReading, error)
	FindReadingByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*MeterReading, error)
}
