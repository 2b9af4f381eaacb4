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
	"time"

	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/delivery"
)

type fakeCancelStore struct {
	cancellable map[int64]bool
	cancelled   []int64
}

func (f *fakeCancelStore) Claim(context.Context, int, time.Duration) ([]delivery.Delivery, error) {
	return nil, nil
}

func (f *fakeCancelStore) RecordSuccess(context.Context, delivery.Delivery, int) error {
	return nil
}

func (f *fakeCancelStore) RecordFailure(context.Context, delivery.Delivery, int, int, time.Time, string, bool) error {
	return nil
}

func (f *fakeCancelStore) Cancel(_ context.Context, id int64) (bool, error) {
	if !f.cancellable[id] {
		return false, nil
	}
	f.cancelled = append(f.cancelled, id)
	return true, nil
}

func postCancel(t *testing.T, h *DeliveryHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/deliveries/cancel", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Cancel(rw, req)
	return rw
}

func TestCancelStopsPendingDelivery(t *testing.T) {
	store := &fakeCancelStore{cancellable: map[int64]bool{42: true}}
	h := NewDeliveryHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rw := postCancel(t, h, `{"delivery_id": 42}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != delivery.StatusCancelled {
		t.Fatalf("status = %s, want %s", resp.Status, delivery.StatusCancelled)
	}
	if len(store.cancelled) != 1 || store.cancelled[0] != 42 {
		t.Fatalf("cancelled ids = %v, want [42]", store.cancelled)
	}
}

func TestCancelTerminalDeliveryNotFound(t *testing.T) {
	store := &fakeCancelStore{cancellable: map[int64]bool{}}
	h := NewDeliveryHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rw := postCancel(t, h, `{"delivery_id": 42}`)
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestCancelRequiresDeliveryID(t *testing.T) {
	h := NewDeliveryHandler(&fakeCancelStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rw := postCancel(t, h, `{}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCancelRejectsGet(t *testing.T) {
	h := NewDeliveryHandler(&fakeCancelStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/deliveries/cancel", nil)
	rw := httptest.NewRecorder()
	h.Cancel(rw, req)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}
