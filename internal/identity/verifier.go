package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const developmentSecret = "revenue-development-secret"

type VerifierParams struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock `optional:"true"`
}

// Verifier validates HMAC signed tokens from the identity provider.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	clock    clock.Clock
}

func NewVerifier(p VerifierParams) (*Verifier, error) {
	secret := p.Cfg.Auth.JWTSecret
	if secret == "" {
		if p.Cfg.IsProduction() {
			return nil, errors.New("AUTH_JWT_SECRET is required in production")
		}
		p.Log.Warn("AUTH_JWT_SECRET not set, using development secret")
		secret = developmentSecret
	}
	return NewStaticVerifier(secret, p.Cfg.Auth.Issuer, p.Cfg.Auth.Audience, p.Clock), nil
}

func NewStaticVerifier(secret, issuer, audience string, clk clock.Clock) *Verifier {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		clock:    clk,
	}
}

func (v *Verifier) Verify(raw string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	principal := principalFromClaims(claims)
	if principal.ExternalID == "" {
		return Principal{}, fmt.Errorf("%w: subject is empty", ErrInvalidToken)
	}
	return principal, nil
}

// Sign issues a token for p. Used by local tooling and tests standing in for
// the identity provider.
func (v *Verifier) Sign(p Principal, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	claims := Claims{
		GivenName:  p.FirstName,
		FamilyName: p.LastName,
		Email:      p.Email,
		Phone:      p.Phone,
		Role:       p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ExternalID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
