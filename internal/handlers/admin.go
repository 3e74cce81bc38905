package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sokoniapp/sokoni/internal/db"
	"github.com/sokoniapp/sokoni/internal/observability"
)

func orderIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(mux.Vars(r)["orderID"])
	return orderID, err == nil
}

// AdminInspectOrder shows the reviewer an order with its proof and the
// advisory amount signal.
func (h *Handlers) AdminInspectOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}

	inspection, err := h.reviewService.Inspect(r.Context(), orderID)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inspection)
}

// AdminApproveOrder confirms a proof under review.
func (h *Handlers) AdminApproveOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}

	if err := h.reviewService.Approve(r.Context(), orderID); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	observability.OrdersSettledTotal.WithLabelValues("completed").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

type rejectOrderRequest struct {
	Reason string `json:"reason"`
}

// AdminRejectOrder declines a proof under review.
func (h *Handlers) AdminRejectOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}

	var req rejectOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "a rejection reason is required", Field: "reason"})
		return
	}

	if err := h.reviewService.Reject(r.Context(), orderID, reason); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	observability.OrdersSettledTotal.WithLabelValues("rejected").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// AdminReopenOrder returns an under-review order to pending.
func (h *Handlers) AdminReopenOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}

	if err := h.reviewService.Reopen(r.Context(), orderID); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
}

type shipOrderRequest struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

// AdminShipOrder marks a completed order shipped.
func (h *Handlers) AdminShipOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}

	var req shipOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := h.reviewService.Ship(r.Context(), orderID, req.TrackingNumber, req.Carrier); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shipped"})
}

type updateGatewayCredentialsRequest struct {
	GatewayAccountID string `json:"gateway_account_id"`
	GatewaySecret    string `json:"gateway_secret"`
}

// AdminUpdateGatewayCredentials rotates a store's hosted-gateway account id
// and secret. The secret is write-only: it is never echoed back.
func (h *Handlers) AdminUpdateGatewayCredentials(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(mux.Vars(r)["storeID"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "store not found"})
		return
	}

	var req updateGatewayCredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.GatewayAccountID) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "a gateway account id is required", Field: "gateway_account_id"})
		return
	}

	err = h.stores.UpdateGatewayCredentials(r.Context(), storeID,
		strings.TrimSpace(req.GatewayAccountID), req.GatewaySecret)
	if errors.Is(err, db.ErrStoreNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "store not found"})
		return
	}
	if err != nil {
		h.loggerFromContext(r.Context()).Error("failed to update gateway credentials",
			"store_id", storeID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "something went wrong"})
		return
	}

	h.loggerFromContext(r.Context()).Info("gateway credentials updated", "store_id", storeID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// AdminDeliverOrder marks a shipped order delivered.
func (h *Handlers) AdminDeliverOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}

	if err := h.reviewService.Deliver(r.Context(), orderID); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}
