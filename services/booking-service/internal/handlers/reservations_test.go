package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/model"
)

// stubTx satisfies pgx.Tx for flows that only lock, commit and roll back.
type stubTx struct{}

func (stubTx) Begin(context.Context) (pgx.Tx, error) { return stubTx{}, nil }
func (stubTx) Commit(context.Context) error          { return nil }
func (stubTx) Rollback(context.Context) error        { return nil }
func (stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (stubTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (stubTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (stubTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (stubTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (stubTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (stubTx) Conn() *pgx.Conn                                         { return nil }

type fakeReservationStore struct {
	byKey   map[string]model.Reservation
	current model.Reservation
	inserts int
	updates int
}

func (f *fakeReservationStore) Begin(context.Context) (pgx.Tx, error) { return stubTx{}, nil }

func (f *fakeReservationStore) GetByIdempotencyKey(_ context.Context, _ pgx.Tx, venueID, key string) (model.Reservation, bool, error) {
	res, ok := f.byKey[venueID+"/"+key]
	return res, ok, nil
}

func (f *fakeReservationStore) VenueDefaults(context.Context, db.Querier, string) (int, int, error) {
	return 1, 0, nil
}

func (f *fakeReservationStore) Insert(_ context.Context, _ pgx.Tx, _ *model.Reservation) (string, error) {
	f.inserts++
	return "inserted-id", nil
}

func (f *fakeReservationStore) GetForUpdate(context.Context, pgx.Tx, string) (model.Reservation, error) {
	return f.current, nil
}

func (f *fakeReservationStore) Get(context.Context, string) (model.Reservation, error) {
	return f.current, nil
}

func (f *fakeReservationStore) UpdateStatus(context.Context, pgx.Tx, string, model.ReservationStatus) error {
	f.updates++
	return nil
}

func (f *fakeReservationStore) InsertStatusEvent(context.Context, pgx.Tx, model.StatusEvent) (int64, error) {
	return 1, nil
}

func (f *fakeReservationStore) ListStatusEvents(context.Context, string) ([]model.StatusEvent, error) {
	return nil, nil
}

func (f *fakeReservationStore) ListByVenue(context.Context, string, int) ([]model.Reservation, error) {
	return nil, nil
}

func TestCreateReplaysIdempotencyKey(t *testing.T) {
	existing := model.Reservation{ID: "res-original", Status: model.StatusConfirmed}
	store := &fakeReservationStore{
		byKey: map[string]model.Reservation{"venue-1/key-abc": existing},
	}
	h := NewReservationHandler(store, nil, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	body := `{
		"venue_id": "venue-1",
		"provider_id": "prov-1",
		"customer": {"name": "Aoi"},
		"start": "2026-09-01T10:00:00Z",
		"end": "2026-09-01T11:00:00Z"
	}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "http://example.com", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "key-abc")
		rw := httptest.NewRecorder()
		h.Create(rw, req)

		if rw.Code != http.StatusCreated {
			t.Fatalf("call %d: expected 201, got %d: %s", i, rw.Code, rw.Body.String())
		}
		var resp struct {
			ReservationID string `json:"reservation_id"`
			Status        string `json:"status"`
		}
		if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.ReservationID != existing.ID {
			t.Fatalf("call %d: reservation_id = %s, want %s", i, resp.ReservationID, existing.ID)
		}
		if resp.Status != string(existing.Status) {
			t.Fatalf("call %d: status = %s, want %s", i, resp.Status, existing.Status)
		}
	}
	if store.inserts != 0 {
		t.Fatalf("replay inserted %d rows, want 0", store.inserts)
	}
}

func TestTransitionFromTerminalStatusRejected(t *testing.T) {
	terminal := []model.ReservationStatus{
		model.StatusDeclined, model.StatusCancelled, model.StatusCompleted, model.StatusExpired,
	}
	for _, from := range terminal {
		store := &fakeReservationStore{
			current: model.Reservation{ID: "res-1", Status: from},
		}
		h := NewReservationHandler(store, nil, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

		rw := postJSON(t, h.Transition, `{"reservation_id": "res-1", "status": "confirmed"}`)
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("from %s: expected 400, got %d", from, rw.Code)
		}
		if got := decodeError(t, rw); got != codeInvalidTransition {
			t.Fatalf("from %s: expected %s, got %s", from, codeInvalidTransition, got)
		}
		if store.updates != 0 {
			t.Fatalf("from %s: status written despite rejection", from)
		}
	}
}
