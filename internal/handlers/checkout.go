package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sokoniapp/sokoni/internal/checkout"
	"github.com/sokoniapp/sokoni/internal/models"
	"github.com/sokoniapp/sokoni/internal/observability"
)

type startCheckoutRequest struct {
	RefKind string `json:"ref_kind"`
	RefID   string `json:"ref_id"`
}

// StartCheckout opens a checkout session for a product or payment link.
func (h *Handlers) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var req startCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	refID, err := uuid.Parse(req.RefID)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid reference id", Field: "ref_id"})
		return
	}
	kind := models.ReferenceKind(req.RefKind)
	if kind != models.RefProduct && kind != models.RefPaymentLink {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "ref_kind must be product or payment_link", Field: "ref_kind"})
		return
	}

	view, err := h.orchestrator.Start(r.Context(), models.Reference{Kind: kind, ID: refID})
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}

	observability.CheckoutsStartedTotal.Inc()
	writeJSON(w, http.StatusCreated, view)
}

// SubmitDetails records buyer contact and delivery details.
func (h *Handlers) SubmitDetails(w http.ResponseWriter, r *http.Request) {
	var details checkout.BuyerDetails
	if err := decodeJSON(w, r, &details); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	view, err := h.orchestrator.SubmitDetails(r.Context(), sessionIDFromRequest(r), details)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListMethods returns the payment methods offered for the session's store.
func (h *Handlers) ListMethods(w http.ResponseWriter, r *http.Request) {
	options, err := h.orchestrator.Methods(r.Context(), sessionIDFromRequest(r))
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"methods": options})
}

type selectMethodRequest struct {
	MethodID string `json:"method_id"`
}

// SelectMethod pins a payment method to the session.
func (h *Handlers) SelectMethod(w http.ResponseWriter, r *http.Request) {
	var req selectMethodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	methodID, err := uuid.Parse(req.MethodID)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid method id", Field: "method_id"})
		return
	}

	view, err := h.orchestrator.SelectMethod(r.Context(), sessionIDFromRequest(r), methodID)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// BeginHostedPayment creates the order and returns the gateway redirect URL.
func (h *Handlers) BeginHostedPayment(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.orchestrator.BeginHostedRedirect(r.Context(), sessionIDFromRequest(r))
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}

	observability.OrdersCreatedTotal.WithLabelValues("hosted").Inc()
	writeJSON(w, http.StatusOK, redirect)
}

// SubmitProof records the buyer's manual payment evidence.
func (h *Handlers) SubmitProof(w http.ResponseWriter, r *http.Request) {
	var input checkout.ProofInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	receipt, err := h.orchestrator.SubmitProof(r.Context(), sessionIDFromRequest(r), input)
	if err != nil {
		observability.ProofSubmissionsTotal.WithLabelValues("rejected").Inc()
		h.writeFlowError(w, r, err)
		return
	}

	observability.OrdersCreatedTotal.WithLabelValues("manual").Inc()
	observability.ProofSubmissionsTotal.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusOK, receipt)
}

// CancelCheckout abandons the session.
func (h *Handlers) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Cancel(r.Context(), sessionIDFromRequest(r)); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckoutStatus reports the session's current state.
func (h *Handlers) CheckoutStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.orchestrator.Status(r.Context(), sessionIDFromRequest(r))
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func sessionIDFromRequest(r *http.Request) string {
	return mux.Vars(r)["sessionID"]
}
