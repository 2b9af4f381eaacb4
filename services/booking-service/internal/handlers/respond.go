package handlers

import (
	"encoding/json"
	"net/http"
)

// Error codes surfaced to clients. Validation and conflict errors are
// client-correctable and never retried server-side.
const (
	codeInvalidTimeRange  = "invalid_time_range"
	codeInvalidBreaks     = "invalid_breaks"
	codeShiftOverlaps     = "shift_overlaps_existing"
	codeBookingRejected   = "booking_rejected"
	codeInvalidStatus     = "invalid_status"
	codeInvalidTransition = "invalid_status_transition"
	codeNotFound          = "not_found"
	codeInternal          = "internal_error"
)

type errorBody struct {
	Error   string   `json:"error"`
	Reasons []string `json:"reasons,omitempty"`
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

func writeError(w http.ResponseWriter, status int, code string, reasons ...string) {
	writeJSON(w, status, errorBody{Error: code, Reasons: reasons})
}
