package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

// Bill is the amount due for one settlement attempt.
type Bill struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	BillNumber       string            `gorm:"type:text;not null;uniqueIndex" json:"bill_number"`
	ServiceAccountID snowflake.ID      `gorm:"not null;index" json:"service_account_id"`
	MeterReadingID   *snowflake.ID     `json:"meter_reading_id,omitempty"`
	Amount           decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency         string            `gorm:"type:text;not null" json:"currency"`
	Status           Status            `gorm:"type:text;not null;index" json:"status"`
	DueDate          time.Time         `gorm:"not null" json:"due_date"`
	Details          datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"details"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Bill) TableName() string { return "bills" }
