package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/libs/interval"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/availability"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/calendar"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/deliveries"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/model"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/outbox"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/storage"
)

// reservationStore is the persistence surface the reservation handler
// drives. *storage.ReservationRepository is the production implementation.
type reservationStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetByIdempotencyKey(ctx context.Context, tx pgx.Tx, venueID, key string) (model.Reservation, bool, error)
	VenueDefaults(ctx context.Context, q db.Querier, venueID string) (rooms int, bufferMinutes int, err error)
	Insert(ctx context.Context, tx pgx.Tx, res *model.Reservation) (string, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Reservation, error)
	Get(ctx context.Context, id string) (model.Reservation, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status model.ReservationStatus) error
	InsertStatusEvent(ctx context.Context, tx pgx.Tx, evt model.StatusEvent) (int64, error)
	ListStatusEvents(ctx context.Context, reservationID string) ([]model.StatusEvent, error)
	ListByVenue(ctx context.Context, venueID string, limit int) ([]model.Reservation, error)
}

type ReservationHandler struct {
	repo       reservationStore
	calc       *availability.Calculator
	deliveries *deliveries.Repository
	outbox     *outbox.Repository
	sync       *calendar.Sync
	logger     *slog.Logger
	channels   []string
}

func NewReservationHandler(
	repo reservationStore,
	calc *availability.Calculator,
	deliveryRepo *deliveries.Repository,
	outboxRepo *outbox.Repository,
	sync *calendar.Sync,
	logger *slog.Logger,
	channels []string,
) *ReservationHandler {
	return &ReservationHandler{
		repo:       repo,
		calc:       calc,
		deliveries: deliveryRepo,
		outbox:     outboxRepo,
		sync:       sync,
		logger:     logger,
		channels:   channels,
	}
}

type customerFields struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type createReservationRequest struct {
	VenueID        string         `json:"venue_id"`
	ProviderID     string         `json:"provider_id"`
	Start          string         `json:"start"`
	End            string         `json:"end"`
	BufferMinutes  *int           `json:"buffer_minutes"`
	Customer       customerFields `json:"customer"`
	PriceCents     int64          `json:"price_cents"`
	PaymentRef     string         `json:"payment_ref"`
	IdempotencyKey string         `json:"idempotency_key"`
}

type reservationResponse struct {
	ReservationID string `json:"reservation_id"`
	Status        string `json:"status"`
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange, "invalid json body")
		return
	}
	req.VenueID = strings.TrimSpace(req.VenueID)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	if req.VenueID == "" || req.Customer.Name == "" {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange, "venue_id and customer.name required")
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange, "invalid start")
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange, "invalid end")
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, codeInvalidTimeRange)
		return
	}
	start, end = start.UTC(), end.UTC()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Concurrent attempts for the same provider (or venue capacity pool)
	// serialize here; the availability re-check below then sees every
	// committed neighbour.
	if req.ProviderID != "" {
		err = storage.LockProvider(ctx, tx, req.ProviderID)
	} else {
		err = storage.LockVenue(ctx, tx, req.VenueID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	if idempotencyKey != "" {
		existing, found, err := h.repo.GetByIdempotencyKey(ctx, tx, req.VenueID, idempotencyKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternal)
			return
		}
		if found {
			// Replay: return the original reservation untouched.
			writeJSON(w, http.StatusCreated, reservationResponse{
				ReservationID: existing.ID,
				Status:        string(existing.Status),
			})
			return
		}
	}

	rooms, defaultBuffer, err := h.repo.VenueDefaults(ctx, tx, req.VenueID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, codeNotFound, "unknown venue")
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	_ = rooms // capacity is enforced by the calculator below

	bufferMinutes := defaultBuffer
	if req.BufferMinutes != nil && *req.BufferMinutes >= 0 {
		bufferMinutes = *req.BufferMinutes
	}

	decision, err := h.calc.IsBookable(ctx, tx, availability.Request{
		VenueID:    req.VenueID,
		ProviderID: req.ProviderID,
		Window:     interval.Interval{Start: start, End: end},
		Buffer:     time.Duration(bufferMinutes) * time.Minute,
	})
	if err != nil {
		h.logger.Error("availability check failed", "err", err, "venue_id", req.VenueID)
	}
	if !decision.OK {
		writeError(w, http.StatusConflict, codeBookingRejected, decision.Reasons...)
		return
	}

	res := model.Reservation{
		VenueID:         req.VenueID,
		ProviderID:      req.ProviderID,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: int(end.Sub(start) / time.Minute),
		BufferMinutes:   bufferMinutes,
		Status:          model.StatusPending,
		IdempotencyKey:  idempotencyKey,
		CapacityGroup:   storage.NewCapacityGroup(req.VenueID, req.ProviderID),
		CustomerName:    req.Customer.Name,
		CustomerEmail:   strings.TrimSpace(req.Customer.Email),
		CustomerPhone:   strings.TrimSpace(req.Customer.Phone),
		PriceCents:      req.PriceCents,
		PaymentRef:      strings.TrimSpace(req.PaymentRef),
	}

	id, err := h.repo.Insert(ctx, tx, &res)
	if err != nil {
		if storage.IsConflict(err) {
			// Exclusion-constraint backstop for anything the in-tx check
			// could not see.
			writeError(w, http.StatusConflict, codeBookingRejected, availability.ReasonOverlap)
			return
		}
		if storage.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, codeBookingRejected, "duplicate idempotency key")
			return
		}
		h.logger.Error("reservation insert failed", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	res.ID = id

	evt := model.StatusEvent{
		ReservationID: id,
		Status:        model.StatusPending,
		Actor:         actorOrDefault(r, "guest"),
	}
	eventID, err := h.repo.InsertStatusEvent(ctx, tx, evt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if err := h.deliveries.Enqueue(ctx, tx, eventID, deliveries.NewPayload(res, evt), h.channels); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if err := h.insertReservationEvent(ctx, tx, res, outbox.EventReservationCreated); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	if res.ProviderID != "" {
		h.sync.Recompute(ctx, res.ProviderID, res.VenueID, datesSpanned(start, end)...)
	}

	writeJSON(w, http.StatusCreated, reservationResponse{ReservationID: id, Status: string(model.StatusPending)})
}

type transitionRequest struct {
	ReservationID string `json:"reservation_id"`
	Status        string `json:"status"`
	Actor         string `json:"actor"`
	Note          string `json:"note"`
}

func (h *ReservationHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidStatus, "invalid json body")
		return
	}
	req.ReservationID = strings.TrimSpace(req.ReservationID)
	if req.ReservationID == "" {
		writeError(w, http.StatusBadRequest, codeNotFound, "reservation_id required")
		return
	}
	newStatus, ok := model.ParseReservationStatus(strings.TrimSpace(req.Status))
	if !ok {
		writeError(w, http.StatusBadRequest, codeInvalidStatus)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := h.repo.GetForUpdate(ctx, tx, req.ReservationID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, codeNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if !model.CanTransition(res.Status, newStatus) {
		writeError(w, http.StatusBadRequest, codeInvalidTransition)
		return
	}

	if err := h.repo.UpdateStatus(ctx, tx, res.ID, newStatus); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	res.Status = newStatus

	evt := model.StatusEvent{
		ReservationID: res.ID,
		Status:        newStatus,
		Actor:         actorOrDefault(r, strings.TrimSpace(req.Actor)),
		Note:          strings.TrimSpace(req.Note),
	}
	eventID, err := h.repo.InsertStatusEvent(ctx, tx, evt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if err := h.deliveries.Enqueue(ctx, tx, eventID, deliveries.NewPayload(res, evt), h.channels); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if err := h.insertReservationEvent(ctx, tx, res, outbox.EventReservationStatusChanged); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	// Leaving the active set frees the slot; refresh the projection.
	if res.ProviderID != "" {
		h.sync.Recompute(ctx, res.ProviderID, res.VenueID, datesSpanned(res.StartTime, res.EndTime)...)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(newStatus)})
}

func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, codeNotFound, "id required")
		return
	}
	res, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, codeNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	events, err := h.repo.ListStatusEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	type eventItem struct {
		Status    string `json:"status"`
		Actor     string `json:"actor"`
		Note      string `json:"note,omitempty"`
		CreatedAt string `json:"created_at"`
	}
	items := make([]eventItem, 0, len(events))
	for _, evt := range events {
		items = append(items, eventItem{
			Status:    string(evt.Status),
			Actor:     evt.Actor,
			Note:      evt.Note,
			CreatedAt: evt.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reservation_id": res.ID,
		"venue_id":       res.VenueID,
		"provider_id":    res.ProviderID,
		"start_time":     res.StartTime.UTC().Format(time.RFC3339),
		"end_time":       res.EndTime.UTC().Format(time.RFC3339),
		"buffer_minutes": res.BufferMinutes,
		"status":         string(res.Status),
		"customer_name":  res.CustomerName,
		"events":         items,
	})
}

func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	venueID := strings.TrimSpace(r.URL.Query().Get("venue_id"))
	if venueID == "" {
		writeError(w, http.StatusBadRequest, codeNotFound, "venue_id required")
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	list, err := h.repo.ListByVenue(r.Context(), venueID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	type item struct {
		ReservationID string `json:"reservation_id"`
		ProviderID    string `json:"provider_id,omitempty"`
		StartTime     string `json:"start_time"`
		EndTime       string `json:"end_time"`
		Status        string `json:"status"`
		CustomerName  string `json:"customer_name"`
	}
	items := make([]item, 0, len(list))
	for _, res := range list {
		items = append(items, item{
			ReservationID: res.ID,
			ProviderID:    res.ProviderID,
			StartTime:     res.StartTime.UTC().Format(time.RFC3339),
			EndTime:       res.EndTime.UTC().Format(time.RFC3339),
			Status:        string(res.Status),
			CustomerName:  res.CustomerName,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ReservationHandler) insertReservationEvent(ctx context.Context, tx pgx.Tx, res model.Reservation, eventType string) error {
	payload, err := outbox.MarshalReservation(res)
	if err != nil {
		return err
	}
	return h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "reservation",
		AggregateID:   res.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func actorOrDefault(r *http.Request, fallback string) string {
	if actor := strings.TrimSpace(r.Header.Get("X-Actor")); actor != "" {
		return actor
	}
	if fallback != "" {
		return fallback
	}
	return "system"
}

// datesSpanned lists the midnight-UTC dates a window touches, usually one.
func datesSpanned(start, end time.Time) []time.Time {
	first := start.UTC().Truncate(24 * time.Hour)
	last := end.UTC().Add(-time.Nanosecond).Truncate(24 * time.Hour)
	var out []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
