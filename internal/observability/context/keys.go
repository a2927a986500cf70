package context

import "context"

type contextKey string

const (
	requestIDKey   contextKey = "observability_request_id"
	serviceCodeKey contextKey = "observability_service_code"
	actorTypeKey   contextKey = "observability_actor_type"
	actorIDKey     contextKey = "observability_actor_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithServiceCode tags the context with the municipal service being billed.
func WithServiceCode(ctx context.Context, code string) context.Context {
	if ctx == nil || code == "" {
		return ctx
	}
	return context.WithValue(ctx, serviceCodeKey, code)
}

func ServiceCodeFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(serviceCodeKey).(string)
	return value
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	if ctx == nil {
		return ctx
	}
	if actorType != "" {
		ctx = context.WithValue(ctx, actorTypeKey, actorType)
	}
	if actorID != "" {
		ctx = context.WithValue(ctx, actorIDKey, actorID)
	}
	return ctx
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	actorType, _ := ctx.Value(actorTypeKey).(string)
	actorID, _ := ctx.Value(actorIDKey).(string)
	return actorType, actorID
}
