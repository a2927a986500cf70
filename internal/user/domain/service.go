package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Profile is the contact data supplied by the identity provider.
type Profile struct {
	ExternalID string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
}

type Service interface {
	// Upsert creates the user on first sight and refreshes contact fields
	// afterwards. Concurrent calls for one ExternalID yield one row.
	Upsert(ctx context.Context, profile Profile) (User, error)
	GetByID(ctx context.Context, id snowflake.ID) (User, error)
	GetByExternalID(ctx context.Context, externalID string) (User, error)
}

var (
	ErrInvalidExternalID = errors.New("invalid_external_id")
	ErrNotFound          = errors.New("user_not_found")
)
