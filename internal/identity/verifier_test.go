package identity

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	v := NewStaticVerifier("secret", "https://idp.example", "revenue", clk)

	token, err := v.Sign(Principal{
		ExternalID: "kp_123",
		FirstName:  "Amina",
		LastName:   "Otieno",
		Email:      "Amina@Example.com",
		Phone:      "+254700000000",
	}, time.Hour)
	require.NoError(t, err)

	principal, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "kp_123", principal.ExternalID)
	assert.Equal(t, "amina@example.com", principal.Email)
	assert.Equal(t, RoleCitizen, principal.Role)
	assert.Equal(t, "Amina Otieno", principal.FullName())
	assert.False(t, principal.IsAdmin())
}

func TestVerifyRejectsExpired(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	v := NewStaticVerifier("secret", "", "", clk)

	token, err := v.Sign(Principal{ExternalID: "kp_1"}, time.Minute)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecretAndAudience(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	signer := NewStaticVerifier("other", "", "", clk)
	token, err := signer.Sign(Principal{ExternalID: "kp_1"}, time.Hour)
	require.NoError(t, err)

	_, err = NewStaticVerifier("secret", "", "", clk).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewStaticVerifier("other", "", "revenue", clk).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsEmptySubject(t *testing.T) {
	v := NewStaticVerifier("secret", "", "", nil)
	token, err := v.Sign(Principal{}, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	_, err := BearerToken("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = BearerToken("Basic abc")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, err := BearerToken("bearer  abc.def ")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{ExternalID: "kp_9", Role: RoleAdmin})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.True(t, p.IsAdmin())
}
