package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/delivery"
)

// DeliveryHandler is the operator surface over queued deliveries.
type DeliveryHandler struct {
	store  delivery.Store
	logger *slog.Logger
}

func NewDeliveryHandler(store delivery.Store, logger *slog.Logger) *DeliveryHandler {
	return &DeliveryHandler{store: store, logger: logger}
}

type cancelRequest struct {
	DeliveryID int64 `json:"delivery_id"`
}

// Cancel stops further attempts for one delivery. Only pending and
// in_progress rows can be cancelled; terminal rows and unknown ids 404.
func (h *DeliveryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.DeliveryID <= 0 {
		writeError(w, http.StatusBadRequest, "delivery_id required")
		return
	}

	ok, err := h.store.Cancel(r.Context(), req.DeliveryID)
	if err != nil {
		h.logger.Error("delivery cancel failed", "err", err, "delivery_id", req.DeliveryID)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	h.logger.Info("delivery cancelled", "delivery_id", req.DeliveryID)
	writeJSON(w, http.StatusOK, map[string]string{"status": delivery.StatusCancelled})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
