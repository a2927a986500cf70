package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revenue/internal/history/domain"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LatestPayment(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := db.WithContext(ctx).
		Where("service_account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Entry, error) {
	var entries []*domain.Entry
	stmt := db.WithContext(ctx).
		Table("payments AS p").
		Select(`p.id AS payment_id, p.transaction_id, p.service_code,
			COALESCE(sd.name, p.service_code) AS service_name,
			COALESCE(sa.account_number, '') AS account_number,
			COALESCE(b.bill_number, '') AS bill_number,
			p.amount, p.fee, p.total, p.currency, p.status, p.created_at, p.completed_at`).
		Joins("LEFT JOIN service_accounts sa ON sa.id = p.service_account_id").
		Joins("LEFT JOIN service_definitions sd ON sd.code = p.service_code").
		Joins("LEFT JOIN bills b ON b.id = p.bill_id").
		Where("p.user_id = ?", filter.UserID)

	if code := strings.ToUpper(strings.TrimSpace(filter.ServiceCode)); code != "" {
		stmt = stmt.Where("p.service_code = ?", code)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(p.created_at < ? OR (p.created_at = ? AND p.id < ?))",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("p.created_at DESC, p.id DESC")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Scan(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
