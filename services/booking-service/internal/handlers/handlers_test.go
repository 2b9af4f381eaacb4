package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// The validation paths below reject before any storage access, so handlers
// built with nil dependencies are safe to exercise.

func newTestReservationHandler() *ReservationHandler {
	return NewReservationHandler(nil, nil, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "http://example.com", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h(rw, req)
	return rw
}

func decodeError(t *testing.T, rw *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body: %v: %s", err, rw.Body.String())
	}
	return body.Error
}

func TestCreateReservationRejectsInvalidBody(t *testing.T) {
	h := newTestReservationHandler()

	rw := postJSON(t, h.Create, "{not json")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreateReservationRejectsMissingFields(t *testing.T) {
	h := newTestReservationHandler()

	rw := postJSON(t, h.Create, `{"venue_id": "", "customer": {"name": "A"}}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreateReservationRejectsInvertedWindow(t *testing.T) {
	h := newTestReservationHandler()

	rw := postJSON(t, h.Create, `{
		"venue_id": "venue-1",
		"customer": {"name": "Aoi"},
		"start": "2026-09-01T11:00:00Z",
		"end": "2026-09-01T10:00:00Z"
	}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	if got := decodeError(t, rw); got != codeInvalidTimeRange {
		t.Fatalf("expected %s, got %s", codeInvalidTimeRange, got)
	}
}

func TestCreateReservationRejectsZeroLengthWindow(t *testing.T) {
	h := newTestReservationHandler()

	rw := postJSON(t, h.Create, `{
		"venue_id": "venue-1",
		"customer": {"name": "Aoi"},
		"start": "2026-09-01T10:00:00Z",
		"end": "2026-09-01T10:00:00Z"
	}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	h := newTestReservationHandler()

	rw := postJSON(t, h.Transition, `{"reservation_id": "res-1", "status": "approved"}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	if got := decodeError(t, rw); got != codeInvalidStatus {
		t.Fatalf("expected %s, got %s", codeInvalidStatus, got)
	}
}

func TestTransitionRejectsMissingID(t *testing.T) {
	h := newTestReservationHandler()

	rw := postJSON(t, h.Transition, `{"status": "confirmed"}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreateShiftRejectsBadBreaks(t *testing.T) {
	h := NewShiftHandler(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Break outside the shift window.
	rw := postJSON(t, h.Create, `{
		"provider_id": "prov-1",
		"venue_id": "venue-1",
		"date": "2026-09-01",
		"start": "2026-09-01T10:00:00Z",
		"end": "2026-09-01T18:00:00Z",
		"breaks": [{"start": "2026-09-01T09:00:00Z", "end": "2026-09-01T09:30:00Z"}]
	}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreateShiftRejectsInvertedWindow(t *testing.T) {
	h := NewShiftHandler(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rw := postJSON(t, h.Create, `{
		"provider_id": "prov-1",
		"venue_id": "venue-1",
		"date": "2026-09-01",
		"start": "2026-09-01T18:00:00Z",
		"end": "2026-09-01T10:00:00Z"
	}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	if got := decodeError(t, rw); got != codeInvalidTimeRange {
		t.Fatalf("expected %s, got %s", codeInvalidTimeRange, got)
	}
}

func TestCalendarRejectsBadRange(t *testing.T) {
	h := NewCalendarHandler(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet,
		"http://example.com/api/v1/public/calendar?provider_id=p1&from=2026-09-10&to=2026-09-01", nil)
	rw := httptest.NewRecorder()
	h.Days(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCalendarRequiresSubject(t *testing.T) {
	h := NewCalendarHandler(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet,
		"http://example.com/api/v1/public/calendar?from=2026-09-01&to=2026-09-02", nil)
	rw := httptest.NewRecorder()
	h.Days(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}
