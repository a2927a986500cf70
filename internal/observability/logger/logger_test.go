package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/revenue/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextIncludesCorrelation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	orig := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	defer zap.ReplaceGlobals(orig)

	traceID, _ := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	spanID, _ := trace.SpanIDFromHex("0123456789abcdef")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = obscontext.WithRequestID(ctx, "req-9")
	ctx = obscontext.WithServiceCode(ctx, "PRK")

	FromContext(ctx).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, traceID.String(), fields["trace_id"])
	assert.Equal(t, spanID.String(), fields["span_id"])
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "PRK", fields["service_code"])
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select * from payments"))
	assert.Equal(t, "INSERT", operationFromSQL("WITH x AS (select 1) INSERT INTO bills"))
	assert.Equal(t, "UPDATE", operationFromSQL("WITH due AS (SELECT id FROM payments WHERE status = 'PENDING') UPDATE payments SET status = 'FAILED'"))
	assert.Equal(t, "SELECT", operationFromSQL("SELECT * FROM payments WHERE bill_id IN (DELETE FROM bills RETURNING id)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
