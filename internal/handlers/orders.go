package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sokoniapp/sokoni/internal/models"
)

type orderStatusResponse struct {
	OrderID         uuid.UUID          `json:"order_id"`
	OrderNumber     int                `json:"order_number"`
	Status          models.OrderStatus `json:"status"`
	Amount          string             `json:"amount"`
	Currency        string             `json:"currency"`
	ProofCode       string             `json:"proof_code,omitempty"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	TrackingNumber  string             `json:"tracking_number,omitempty"`
	Carrier         string             `json:"carrier,omitempty"`
}

// OrderStatus is the buyer's post-checkout view of an order. The proof code
// is echoed back (the buyer entered it); payer details stay private.
func (h *Handlers) OrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(mux.Vars(r)["orderID"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}

	order, err := h.orderStore.GetByID(r.Context(), orderID)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orderStatusResponse{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		Amount:          order.Amount.StringFixed(2),
		Currency:        order.Currency,
		ProofCode:       order.ProofCode,
		RejectionReason: order.RejectionReason,
		TrackingNumber:  order.TrackingNumber,
		Carrier:         order.Carrier,
	})
}
