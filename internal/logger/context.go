package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

const (
	requestIDKey   ctxKey = "request_id"
	orderNumberKey ctxKey = "order_number"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	return stringFrom(ctx, requestIDKey)
}

// WithOrderNumber tags ctx with the order a payment flow is working on.
func WithOrderNumber(ctx context.Context, number string) context.Context {
	if number == "" || OrderNumberFrom(ctx) == number {
		return ctx
	}
	return context.WithValue(ctx, orderNumberKey, number)
}

func OrderNumberFrom(ctx context.Context) string {
	return stringFrom(ctx, orderNumberKey)
}

func stringFrom(ctx context.Context, key ctxKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// FromCtx returns the global logger carrying the request_id and
// order_number found on ctx.
func FromCtx(ctx context.Context) *zap.Logger {
	var fields []zap.Field
	if reqID := RequestIDFrom(ctx); reqID != "" {
		fields = append(fields, zap.String("request_id", reqID))
	}
	if number := OrderNumberFrom(ctx); number != "" {
		fields = append(fields, zap.String("order_number", number))
	}
	if len(fields) == 0 {
		return L()
	}
	return L().With(fields...)
}
