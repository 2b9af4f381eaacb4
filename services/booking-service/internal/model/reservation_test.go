package model

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to ReservationStatus
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusDeclined, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusExpired, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusExpired, true},
		{StatusConfirmed, StatusDeclined, false},
		{StatusConfirmed, StatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatusesRejectAllTransitions(t *testing.T) {
	all := []ReservationStatus{
		StatusPending, StatusConfirmed, StatusDeclined,
		StatusCancelled, StatusCompleted, StatusExpired,
	}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("terminal %s must not transition to %s", from, to)
			}
		}
	}
}

func TestParseReservationStatus(t *testing.T) {
	if _, ok := ParseReservationStatus("confirmed"); !ok {
		t.Fatal("confirmed should parse")
	}
	if _, ok := ParseReservationStatus("booked"); ok {
		t.Fatal("unknown status must not parse")
	}
	if _, ok := ParseReservationStatus(""); ok {
		t.Fatal("empty status must not parse")
	}
}

func TestBufferedWindow(t *testing.T) {
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	r := Reservation{
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		BufferMinutes: 10,
	}
	w := r.BufferedWindow()
	if !w.Start.Equal(start.Add(-10 * time.Minute)) {
		t.Fatalf("buffered start = %s", w.Start)
	}
	if !w.End.Equal(start.Add(70 * time.Minute)) {
		t.Fatalf("buffered end = %s", w.End)
	}
}
