// Package identity verifies bearer tokens issued by the external identity
// provider and exposes the caller's profile.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing_token")
	ErrInvalidToken = errors.New("invalid_token")
)

const (
	RoleCitizen = "citizen"
	RoleAdmin   = "admin"
	RoleFinance = "finance"
)

// Claims is the token payload issued by the identity provider.
type Claims struct {
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone_number,omitempty"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller of one request.
type Principal struct {
	ExternalID string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Role       string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p Principal) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func principalFromClaims(c *Claims) Principal {
	role := strings.ToLower(strings.TrimSpace(c.Role))
	if role == "" {
		role = RoleCitizen
	}
	return Principal{
		ExternalID: strings.TrimSpace(c.Subject),
		FirstName:  strings.TrimSpace(c.GivenName),
		LastName:   strings.TrimSpace(c.FamilyName),
		Email:      strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:      strings.TrimSpace(c.Phone),
		Role:       role,
	}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.ExternalID == "" {
		return Principal{}, false
	}
	return p, true
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}
