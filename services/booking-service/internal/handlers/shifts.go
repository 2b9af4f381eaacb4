package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/calendar"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/model"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/outbox"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/storage"
)

type ShiftHandler struct {
	repo   *storage.ShiftRepository
	outbox *outbox.Repository
	sync   *calendar.Sync
	logger *slog.Logger
}

func NewShiftHandler(repo *storage.ShiftRepository, outboxRepo *outbox.Repository, sync *calendar.Sync, logger *slog.Logger) *ShiftHandler {
	return &ShiftHandler{repo: repo, outbox: outboxRepo, sync: sync, logger: logger}
}

type breakItem struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type createShiftRequest struct {
	VenueID    string      `json:"venue_id"`
	ProviderID string      `json:"provider_id"`
	Date       string      `json:"date"`
	Start      string      `json:"start"`
	End        string      `json:"end"`
	Breaks     []breakItem `json:"breaks"`
	Status     string      `json:"status"`
}

type updateShiftRequest struct {
	ShiftID string `json:"shift_id"`
	createShiftRequest
}

type deleteShiftRequest struct {
	ShiftID string `json:"shift_id"`
}

// parsedShift is a createShiftRequest after validation, ready to persist.
type parsedShift struct {
	shift model.Shift
}

func (h *ShiftHandler) parseShift(req createShiftRequest) (parsedShift, string) {
	req.VenueID = strings.TrimSpace(req.VenueID)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.VenueID == "" || req.ProviderID == "" {
		return parsedShift{}, "venue_id and provider_id required"
	}

	workDate, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		return parsedShift{}, "invalid date"
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		return parsedShift{}, "invalid start"
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		return parsedShift{}, "invalid end"
	}

	status := model.ShiftAvailable
	if req.Status != "" {
		parsed, ok := model.ParseShiftStatus(strings.TrimSpace(req.Status))
		if !ok {
			return parsedShift{}, "invalid status"
		}
		status = parsed
	}

	return parsedShift{shift: model.Shift{
		VenueID:    req.VenueID,
		ProviderID: req.ProviderID,
		WorkDate:   workDate,
		StartTime:  start.UTC(),
		EndTime:    end.UTC(),
		Status:     status,
	}}, ""
}

func parseBreaks(items []breakItem, shiftStart, shiftEnd time.Time) (model.Breaks, error) {
	raw := make([]model.Break, 0, len(items))
	for _, it := range items {
		bs, err := time.Parse(time.RFC3339, it.Start)
		if err != nil {
			return nil, model.ErrInvalidBreaks
		}
		be, err := time.Parse(time.RFC3339, it.End)
		if err != nil {
			return nil, model.ErrInvalidBreaks
		}
		raw = append(raw, model.Break{Start: bs.UTC(), End: be.UTC()})
	}
	return model.NewBreaks(shiftStart, shiftEnd, raw)
}

func (h *ShiftHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange, "invalid json body")
		return
	}
	parsed, msg := h.parseShift(req)
	if msg != "" {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange, msg)
		return
	}
	s := parsed.shift
	if !s.EndTime.After(s.StartTime) {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange)
		return
	}
	breaks, err := parseBreaks(req.Breaks, s.StartTime, s.EndTime)
	if err != nil {
		h.writeBreakError(w, err)
		return
	}
	s.Breaks = breaks

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := storage.LockProvider(ctx, tx, s.ProviderID); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	overlap, err := h.repo.OverlapExists(ctx, tx, s.ProviderID, s.StartTime, s.EndTime, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if overlap {
		writeError(w, http.StatusConflict, codeShiftOverlaps)
		return
	}

	id, err := h.repo.Insert(ctx, tx, &s)
	if err != nil {
		if storage.IsConflict(err) {
			writeError(w, http.StatusConflict, codeShiftOverlaps)
			return
		}
		h.logger.Error("shift insert failed", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	s.ID = id

	if err := h.insertShiftEvent(ctx, tx, &s, "created"); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	// The calendar is a derived cache: failures here must not undo the
	// committed shift, so Recompute only logs and marks dirty.
	h.sync.Recompute(ctx, s.ProviderID, s.VenueID, s.WorkDate)

	writeJSON(w, http.StatusCreated, map[string]string{"shift_id": id})
}

func (h *ShiftHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req updateShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange, "invalid json body")
		return
	}
	req.ShiftID = strings.TrimSpace(req.ShiftID)
	if req.ShiftID == "" {
		writeError(w, http.StatusBadRequest, codeNotFound, "shift_id required")
		return
	}
	parsed, msg := h.parseShift(req.createShiftRequest)
	if msg != "" {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange, msg)
		return
	}
	s := parsed.shift
	if !s.EndTime.After(s.StartTime) {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange)
		return
	}
	breaks, err := parseBreaks(req.Breaks, s.StartTime, s.EndTime)
	if err != nil {
		h.writeBreakError(w, err)
		return
	}
	s.Breaks = breaks

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := h.repo.GetForUpdate(ctx, tx, req.ShiftID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, codeNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if err := storage.LockProvider(ctx, tx, existing.ProviderID); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	s.ID = existing.ID
	s.VenueID = existing.VenueID
	s.ProviderID = existing.ProviderID

	overlap, err := h.repo.OverlapExists(ctx, tx, s.ProviderID, s.StartTime, s.EndTime, s.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if overlap {
		writeError(w, http.StatusConflict, codeShiftOverlaps)
		return
	}
	if err := h.repo.Update(ctx, tx, &s); err != nil {
		if storage.IsConflict(err) {
			writeError(w, http.StatusConflict, codeShiftOverlaps)
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if err := h.insertShiftEvent(ctx, tx, &s, "updated"); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	// A move invalidates both the previous and the new date.
	h.sync.Recompute(ctx, s.ProviderID, s.VenueID, existing.WorkDate, s.WorkDate)

	writeJSON(w, http.StatusOK, map[string]string{"shift_id": s.ID})
}

func (h *ShiftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req deleteShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeNotFound, "invalid json body")
		return
	}
	req.ShiftID = strings.TrimSpace(req.ShiftID)
	if req.ShiftID == "" {
		writeError(w, http.StatusBadRequest, codeNotFound, "shift_id required")
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleted, err := h.repo.Delete(ctx, tx, req.ShiftID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, codeNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if err := h.insertShiftEvent(ctx, tx, &deleted, "deleted"); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	h.sync.Recompute(ctx, deleted.ProviderID, deleted.VenueID, deleted.WorkDate)

	writeJSON(w, http.StatusOK, map[string]string{"shift_id": deleted.ID})
}

func (h *ShiftHandler) writeBreakError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrInvalidTimeRange) {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange)
		return
	}
	writeError(w, http.StatusBadRequest, codeInvalidBreaks)
}

func (h *ShiftHandler) insertShiftEvent(ctx context.Context, tx pgx.Tx, s *model.Shift, action string) error {
	payload, err := json.Marshal(map[string]any{
		"shift_id":    s.ID,
		"venue_id":    s.VenueID,
		"provider_id": s.ProviderID,
		"date":        s.WorkDate.Format("2006-01-02"),
		"start_time":  s.StartTime.UTC().Format(time.RFC3339),
		"end_time":    s.EndTime.UTC().Format(time.RFC3339),
		"status":      s.Status,
		"action":      action,
	})
	if err != nil {
		return err
	}
	return h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "shift",
		AggregateID:   s.ID,
		EventType:     outbox.EventShiftChanged,
		Payload:       payload,
	})
}
