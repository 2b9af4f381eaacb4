package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/availability"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/calendar"
)

type CalendarHandler struct {
	pool   *db.Pool
	calc   *availability.Calculator
	sync   *calendar.Sync
	logger *slog.Logger
}

func NewCalendarHandler(pool *db.Pool, calc *availability.Calculator, sync *calendar.Sync, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{pool: pool, calc: calc, sync: sync, logger: logger}
}

const maxCalendarDays = 31

// Days serves the slot view for a provider or, with provider_id omitted,
// the fully-booked stretches of a venue. Provider reads hit the Redis
// projection first and fall back to a live computation on a miss.
func (h *CalendarHandler) Days(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	venueID := strings.TrimSpace(q.Get("venue_id"))
	providerID := strings.TrimSpace(q.Get("provider_id"))
	if venueID == "" && providerID == "" {
		writeError(w, http.StatusBadRequest, codeNotFound, "venue_id or provider_id required")
		return
	}

	dateFrom, err := parseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange, "invalid from date")
		return
	}
	dateTo, err := parseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange, "invalid to date")
		return
	}
	if dateTo.Before(dateFrom) || dateTo.Sub(dateFrom) > maxCalendarDays*24*time.Hour {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange)
		return
	}

	ctx := r.Context()

	if providerID == "" {
		days, err := h.calc.VenueBlockedSlots(ctx, h.pool, venueID, dateFrom, dateTo)
		if err != nil {
			h.logger.Error("venue calendar failed", "err", err, "venue_id", venueID)
			writeError(w, http.StatusInternalServerError, codeInternal)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"venue_id": venueID,
			"days":     calendar.ToCachedDays(days),
		})
		return
	}

	if cached, ok := h.sync.CachedDays(ctx, providerID, dateFrom, dateTo); ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"provider_id": providerID,
			"days":        cached,
			"source":      "cache",
		})
		return
	}

	days, err := h.calc.FreeSlots(ctx, h.pool, providerID, dateFrom, dateTo)
	if err != nil {
		h.logger.Error("provider calendar failed", "err", err, "provider_id", providerID)
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider_id": providerID,
		"days":        calendar.ToCachedDays(days),
		"source":      "live",
	})
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(raw))
}
