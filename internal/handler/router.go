package handler

import (
	"net/http"

	"reepay-bridge/internal/logger"
	"reepay-bridge/internal/metrics"
	"reepay-bridge/internal/middleware"
	"reepay-bridge/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts every route behind request-id and access logging.
func NewRouter(h *Handler, limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/metrics/summary", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, metrics.Snapshot())
	})

	r.With(limiter.Middleware(middleware.TierWebhook)).Post("/webhooks/reepay", h.Webhook)
	r.With(limiter.Middleware(middleware.TierCheckout)).Post("/orders/{number}/checkout", h.Checkout)
	r.With(limiter.Middleware(middleware.TierOperator)).Post("/operator/token", h.IssueToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOperator(h.jwtSecret))
		r.Use(limiter.Middleware(middleware.TierOperator))

		r.Get("/orders/{number}/payment", h.PaymentStatus)
		r.Post("/orders/{number}/payment/capture", h.Capture)
		r.Post("/orders/{number}/payment/cancel", h.Cancel)
		r.Post("/orders/{number}/payment/refund", h.Refund)
	})

	return r
}
