package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ServiceDefinition is one payable municipal service and its rate schedule.
type ServiceDefinition struct {
	ID            snowflake.ID                `gorm:"primaryKey" json:"id"`
	Code          string                      `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name          string                      `gorm:"type:text;not null" json:"name"`
	Slug          string                      `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Description   string                      `gorm:"type:text" json:"description"`
	ServiceType   string                      `gorm:"type:text" json:"service_type"`
	BillingPeriod string                      `gorm:"type:text" json:"billing_period"`
	BillingRules  datatypes.JSONMap           `gorm:"type:jsonb;not null;default:'{}'" json:"billing_rules"`
	Zones         datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"zones,omitempty"`
	IsActive      bool                        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ServiceDefinition) TableName() string { return "service_definitions" }
