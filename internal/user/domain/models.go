package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is a citizen known to the portal. ExternalID is the identity
// provider subject and never changes.
type User struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ExternalID string       `gorm:"type:text;not null;uniqueIndex" json:"external_id"`
	FirstName  string       `gorm:"type:text" json:"first_name"`
	LastName   string       `gorm:"type:text" json:"last_name"`
	Email      string       `gorm:"type:text;index" json:"email"`
	Phone      string       `gorm:"type:text" json:"phone"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string { return "users" }
