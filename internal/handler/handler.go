package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"reepay-bridge/internal/auth"
	"reepay-bridge/internal/lock"
	"reepay-bridge/internal/logger"
	"reepay-bridge/internal/order"
	"reepay-bridge/internal/payment"
	"reepay-bridge/internal/payment/webhook"
	"reepay-bridge/internal/utils"

	"go.uber.org/zap"
)

// maxWebhookBody caps the notification body read from Reepay.
const maxWebhookBody = 1 << 20

// Handler serves the HTTP surface of the payment bridge.
type Handler struct {
	orders      order.Service
	credentials auth.Credentials
	jwtSecret   []byte
	tokenTTL    time.Duration
}

func NewHandler(orders order.Service, credentials auth.Credentials, jwtSecret []byte, tokenTTL time.Duration) *Handler {
	return &Handler{
		orders:      orders,
		credentials: credentials,
		jwtSecret:   jwtSecret,
		tokenTTL:    tokenTTL,
	}
}

// statusFor maps a service error onto the HTTP status returned to callers.
func statusFor(err error) int {
	switch {
	case errors.Is(err, webhook.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, webhook.ErrSecretNotConfigured):
		return http.StatusInternalServerError
	case errors.Is(err, webhook.ErrMalformedEvent), errors.Is(err, order.ErrInvalidNumber):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payment.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, lock.ErrNotAcquired), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case payment.Retryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, payment.ErrProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and writes the JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	log := logger.FromCtx(r.Context())
	if code >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	} else {
		log.Info("request rejected", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	}

	msg := http.StatusText(code)
	if code < http.StatusInternalServerError && code != http.StatusUnauthorized {
		msg = err.Error()
	}
	utils.WriteJSONError(w, msg, code)
}
