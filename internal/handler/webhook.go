package handler

import (
	"errors"
	"io"
	"net/http"

	"reepay-bridge/internal/payment/webhook"
	"reepay-bridge/internal/utils"
)

// Webhook receives Reepay notifications. Any 2xx tells Reepay to stop
// retrying, so only deliveries that were accepted or can never succeed are
// acknowledged.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.WriteJSONError(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		writeError(w, r, webhook.ErrMalformedEvent)
		return
	}

	outcome, err := h.orders.HandleWebhook(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, outcome)
}
