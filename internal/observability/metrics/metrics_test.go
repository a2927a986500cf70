package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("service_code", "WTR"),
		attribute.String("user_id", "456"),
		attribute.String("transaction_id", "TRX-1"),
		attribute.String("outcome", "success"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.ElementsMatch(t, []attribute.Key{"service_code", "outcome"}, keys)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordSettlement(ctx, "WTR", "COMPLETED")
	m.RecordGatewayCall(ctx, "intasend", "charge", "success")
	m.RecordReceipt(ctx, "sent")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "revenue"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordSettlement(context.Background(), "LND", "PENDING")
	m.RecordRateLimitDenied(context.Background(), "/api/v1/payments", "exhausted")
}
