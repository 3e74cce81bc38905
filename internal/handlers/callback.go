package handlers

import (
	"net/http"

	"github.com/sokoniapp/sokoni/internal/models"
	"github.com/sokoniapp/sokoni/internal/observability"
)

// PaymentCallback handles the buyer's return from the gateway redirect. The
// gateway appends the checkout session reference as a query parameter. The
// response tells the storefront what to render; verification itself is
// idempotent, so reloads are harmless.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("session_id")
	if reference == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing payment reference"})
		return
	}

	order, err := h.orchestrator.CompleteRedirect(r.Context(), reference)
	if err != nil {
		observability.GatewayVerificationsTotal.WithLabelValues("error").Inc()
		h.writeFlowError(w, r, err)
		return
	}

	switch order.Status {
	case models.StatusCompleted:
		observability.GatewayVerificationsTotal.WithLabelValues("confirmed").Inc()
		observability.OrdersSettledTotal.WithLabelValues(string(order.Status)).Inc()
	case models.StatusFailed:
		observability.GatewayVerificationsTotal.WithLabelValues("failed").Inc()
	default:
		observability.GatewayVerificationsTotal.WithLabelValues("pending").Inc()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order_id": order.ID,
		"status":   order.Status,
	})
}
