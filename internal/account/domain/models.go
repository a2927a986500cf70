package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusPending   Status = "PENDING"
)

// ServiceAccount binds one user to one service code.
type ServiceAccount struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID        snowflake.ID      `gorm:"not null;uniqueIndex:ux_service_accounts_user_code" json:"user_id"`
	ServiceID     snowflake.ID      `gorm:"not null;index" json:"service_id"`
	ServiceCode   string            `gorm:"type:text;not null;uniqueIndex:ux_service_accounts_user_code" json:"service_code"`
	AccountNumber string            `gorm:"type:text;not null;uniqueIndex" json:"account_number"`
	Status        Status            `gorm:"type:text;not null" json:"status"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ServiceAccount) TableName() string { return "service_accounts" }

// MeterReading is an append-only water meter reading. Consumption is the
// delta against the previous reading, or the reading itself when none exists.
type MeterReading struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	ServiceAccountID snowflake.ID  `gorm:"not null;index" json:"service_account_id"`
	PaymentID        *snowflake.ID `gorm:"index" json:"payment_id,omitempty"`
	PreviousReading  *int64        `json:"previous_reading,omitempty"`
	CurrentReading   int64         `gorm:"not null" json:"current_reading"`
	Consumption      int64         `gorm:"not null" json:"consumption"`
	ReadAt           time.Time     `gorm:"not null" json:"read_at"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (MeterReading) TableName() string { return "meter_readings" }

// Metadata keys maintained on service accounts.
const (
	MetadataLastReading   = "last_reading"
	MetadataLastPaymentAt = "last_payment_at"
	MetadataLastPaymentID = "last_transaction_id"
)
