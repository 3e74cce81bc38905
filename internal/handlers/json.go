package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sokoniapp/sokoni/internal/checkout"
	"github.com/sokoniapp/sokoni/internal/db"
)

const maxJSONBodyBytes = 64 << 10 // 64 KB

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeFlowError maps checkout flow errors onto HTTP statuses. Internal
// details never reach the client.
func (h *Handlers) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	var flowErr *checkout.Error
	if errors.As(err, &flowErr) {
		status := http.StatusInternalServerError
		message := flowErr.Message
		switch flowErr.Kind {
		case checkout.KindValidation:
			status = http.StatusUnprocessableEntity
		case checkout.KindNotFound:
			status = http.StatusNotFound
		case checkout.KindNotPurchasable, checkout.KindConflict:
			status = http.StatusConflict
		case checkout.KindGateway:
			status = http.StatusBadGateway
		case checkout.KindInternal:
			message = "something went wrong"
			h.loggerFromContext(r.Context()).Error("checkout operation failed", "error", err)
		}
		writeJSON(w, status, errorResponse{Error: message, Field: flowErr.Field})
		return
	}

	switch {
	case errors.Is(err, db.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
	case errors.Is(err, db.ErrInvalidStatusTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "operation does not apply to the order's current status"})
	default:
		h.loggerFromContext(r.Context()).Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "something went wrong"})
	}
}
