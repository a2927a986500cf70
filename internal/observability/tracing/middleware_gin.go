package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/revenue/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	attrRequestID   = "request_id"
	attrServiceCode = "revenue.service_code"
)

// GinMiddleware opens a server span per request. Routes carrying a
// :code parameter tag both the span and the request context with the
// municipal service code, so query logs and payment spans share it.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("revenue/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		method := strings.ToUpper(c.Request.Method)

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		ctx, span := tracer.Start(ctx, "HTTP "+method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		var members []baggage.Member
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember(attrRequestID, requestID); err == nil {
				members = append(members, member)
			}
			span.SetAttributes(attribute.String(attrRequestID, requestID))
		}
		if code := serviceCodeParam(c); code != "" {
			ctx = obscontext.WithServiceCode(ctx, code)
			span.SetAttributes(attribute.String(attrServiceCode, code))
		}
		if len(members) > 0 {
			if bag, err := baggage.New(members...); err == nil {
				ctx = baggage.ContextWithBaggage(ctx, bag)
			}
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)

		if status < http.StatusInternalServerError {
			return
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			if safeErr := SafeError(lastErr.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

// serviceCodeParam reads the upper-cased :code route parameter.
func serviceCodeParam(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("code")))
}
