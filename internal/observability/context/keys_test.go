package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithServiceCode(ctx, "WTR")
	ctx = WithActor(ctx, "citizen", "idp|123")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "WTR", ServiceCodeFromContext(ctx))
	actorType, actorID := ActorFromContext(ctx)
	assert.Equal(t, "citizen", actorType)
	assert.Equal(t, "idp|123", actorID)
}

func TestEmptyValuesAreIgnored(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, ServiceCodeFromContext(nil))
}
