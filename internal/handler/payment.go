package handler

import (
	"context"
	"net/http"

	"reepay-bridge/internal/logger"
	"reepay-bridge/internal/middleware"
	"reepay-bridge/internal/payment"
	"reepay-bridge/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Checkout returns the hosted checkout form for an order. When no session
// could be created the unavailable form is still returned, with a 503.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	form, err := h.orders.Checkout(r.Context(), number)
	if err != nil {
		if form != nil {
			logger.FromCtx(r.Context()).Warn("checkout unavailable",
				zap.String("order_number", number),
				zap.Error(err),
			)
			utils.WriteJSON(w, http.StatusServiceUnavailable, form)
			return
		}
		writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, form)
}

func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, "fetch_status", h.orders.PaymentStatus)
}

func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, "capture", h.orders.Capture)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, "cancel", h.orders.Cancel)
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, "refund", h.orders.Refund)
}

type operation func(ctx context.Context, number string) (payment.StatusUpdate, error)

func (h *Handler) operate(w http.ResponseWriter, r *http.Request, name string, op operation) {
	number := chi.URLParam(r, "number")
	operator, _ := middleware.OperatorFromContext(r.Context())

	logger.FromCtx(r.Context()).Info("operator payment action",
		zap.String("operator", operator),
		zap.String("operation", name),
		zap.String("order_number", number),
	)

	update, err := op(r.Context(), number)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, update)
}
