package availability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/libs/interval"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/model"
)

type fakeStore struct {
	shifts    []model.Shift
	busy      []interval.Interval
	venueBusy []interval.Interval
	rooms     int
	err       error
}

func (f *fakeStore) ShiftsForProvider(_ context.Context, _ db.Querier, _ string, _, _ time.Time) ([]model.Shift, error) {
	return f.shifts, f.err
}

func (f *fakeStore) ProviderBusy(_ context.Context, _ db.Querier, _ string, _ interval.Interval, _ string) ([]interval.Interval, error) {
	return f.busy, f.err
}

func (f *fakeStore) VenueBusy(_ context.Context, _ db.Querier, _ string, _ interval.Interval) ([]interval.Interval, error) {
	return f.venueBusy, f.err
}

func (f *fakeStore) VenueRoomCount(_ context.Context, _ db.Querier, _ string) (int, error) {
	return f.rooms, f.err
}

var day = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func win(sh, sm, eh, em int) interval.Interval {
	return interval.Interval{Start: at(sh, sm), End: at(eh, em)}
}

func testShift(breaks ...model.Break) model.Shift {
	bs, err := model.NewBreaks(at(10, 0), at(18, 0), breaks)
	if err != nil {
		panic(err)
	}
	return model.Shift{
		ID:         "shift-1",
		VenueID:    "venue-1",
		ProviderID: "prov-1",
		WorkDate:   day,
		StartTime:  at(10, 0),
		EndTime:    at(18, 0),
		Breaks:     bs,
		Status:     model.ShiftAvailable,
	}
}

func newCalc(store Store) *Calculator {
	return NewCalculator(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func hasReason(d Decision, reason string) bool {
	for _, r := range d.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

func TestIsBookable_InvalidRangeSkipsStorage(t *testing.T) {
	c := newCalc(&fakeStore{err: errors.New("store must not be touched")})
	d, err := c.IsBookable(context.Background(), nil, Request{
		ProviderID: "prov-1",
		Window:     win(11, 0, 10, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.OK || !hasReason(d, ReasonInvalidTimeRange) {
		t.Fatalf("decision = %+v", d)
	}
}

func TestIsBookable_NoShift(t *testing.T) {
	c := newCalc(&fakeStore{})
	d, _ := c.IsBookable(context.Background(), nil, Request{
		ProviderID: "prov-1",
		Window:     win(10, 0, 11, 0),
	})
	if d.OK || !hasReason(d, ReasonNoShift) {
		t.Fatalf("decision = %+v", d)
	}
}

func TestIsBookable_UnavailableShiftDoesNotCover(t *testing.T) {
	s := testShift()
	s.Status = model.ShiftUnavailable
	c := newCalc(&fakeStore{shifts: []model.Shift{s}})
	d, _ := c.IsBookable(context.Background(), nil, Request{
		ProviderID: "prov-1",
		Window:     win(10, 0, 11, 0),
	})
	if d.OK || !hasReason(d, ReasonNoShift) {
		t.Fatalf("decision = %+v", d)
	}
}

func TestIsBookable_OnBreak(t *testing.T) {
	// Shift 10:00-18:00 with break 13:00-14:00; booking 13:30-14:30 lands on
	// the break.
	c := newCalc(&fakeStore{shifts: []model.Shift{
		testShift(model.Break{Start: at(13, 0), End: at(14, 0)}),
	}})
	d, _ := c.IsBookable(context.Background(), nil, Request{
		ProviderID: "prov-1",
		Window:     win(13, 30, 14, 30),
	})
	if d.OK {
		t.Fatal("expected rejection")
	}
	if len(d.Reasons) != 1 || d.Reasons[0] != ReasonOnBreak {
		t.Fatalf("reasons = %v, want [on_break]", d.Reasons)
	}
}

func TestIsBookable_OverlapBufferExpanded(t *testing.T) {
	c := newCalc(&fakeStore{
		shifts: []model.Shift{testShift()},
		// Existing reservation 11:00-12:00, already buffer-expanded by its
		// own 10 minutes.
		busy: []interval.Interval{win(10, 50, 12, 10)},
	})
	// 12:15-13:00 clears the raw window but collides once the candidate's
	// 10 minute buffer is applied.
	d, _ := c.IsBookable(context.Background(), nil, Request{
		ProviderID: "prov-1",
		Window:     win(12, 15, 13, 0),
		Buffer:     10 * time.Minute,
	})
	if d.OK || !hasReason(d, ReasonOverlap) {
		t.Fatalf("decision = %+v", d)
	}

	// Without the candidate buffer the same window is fine.
	d, _ = c.IsBookable(context.Background(), nil, Request{
		ProviderID: "prov-1",
		Window:     win(12, 15, 13, 0),
	})
	if !d.OK {
		t.Fatalf("decision = %+v", d)
	}
}

func TestIsBookable_AccumulatesReasons(t *testing.T) {
	c := newCalc(&fakeStore{
		busy: []interval.Interval{win(10, 0, 11, 0)},
	})
	d, _ := c.IsBookable(context.Background(), nil, Request{
		ProviderID: "prov-1",
		Window:     win(10, 30, 11, 30),
	})
	if d.OK {
		t.Fatal("expected rejection")
	}
	if !hasReason(d, ReasonNoShift) || !hasReason(d, ReasonOverlap) {
		t.Fatalf("reasons = %v, want both no_shift and overlap_existing_reservation", d.Reasons)
	}
}

func TestIsBookable_VenueCapacity(t *testing.T) {
	store := &fakeStore{
		rooms: 2,
		venueBusy: []interval.Interval{
			win(10, 0, 12, 0),
			win(11, 0, 13, 0),
		},
	}
	c := newCalc(store)

	// Peak concurrency inside 11:00-12:00 is already 2; a third would
	// exceed room_count=2.
	d, _ := c.IsBookable(context.Background(), nil, Request{
		VenueID: "venue-1",
		Window:  win(11, 0, 12, 0),
	})
	if d.OK || !hasReason(d, ReasonCapacity) {
		t.Fatalf("decision = %+v", d)
	}

	// 12:00-13:00 only overlaps one existing reservation; fits.
	d, _ = c.IsBookable(context.Background(), nil, Request{
		VenueID: "venue-1",
		Window:  win(12, 0, 13, 0),
	})
	if !d.OK {
		t.Fatalf("decision = %+v", d)
	}
}

func TestIsBookable_FailsClosedOnStoreError(t *testing.T) {
	c := newCalc(&fakeStore{err: errors.New("connection reset")})
	d, err := c.IsBookable(context.Background(), nil, Request{
		ProviderID: "prov-1",
		Window:     win(10, 0, 11, 0),
	})
	if err == nil {
		t.Fatal("expected error surfaced for logging")
	}
	if d.OK || !hasReason(d, ReasonInternal) {
		t.Fatalf("decision = %+v, must fail closed", d)
	}
}

func TestFreeSlots(t *testing.T) {
	c := newCalc(&fakeStore{
		shifts: []model.Shift{
			testShift(model.Break{Start: at(13, 0), End: at(14, 0)}),
		},
		busy: []interval.Interval{win(15, 0, 16, 0)},
	})

	days, err := c.FreeSlots(context.Background(), nil, "prov-1", day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}

	var open, blocked []Slot
	for _, s := range days[0].Slots {
		if s.Status == "open" {
			open = append(open, s)
		} else {
			blocked = append(blocked, s)
		}
	}
	wantOpen := []interval.Interval{win(10, 0, 13, 0), win(14, 0, 15, 0), win(16, 0, 18, 0)}
	if len(open) != len(wantOpen) {
		t.Fatalf("open slots = %v, want %v", open, wantOpen)
	}
	for i, w := range wantOpen {
		if !open[i].Start.Equal(w.Start) || !open[i].End.Equal(w.End) {
			t.Fatalf("open[%d] = %+v, want %v", i, open[i], w)
		}
	}
	if len(blocked) != 2 {
		t.Fatalf("blocked slots = %v", blocked)
	}

	// The second date has no shift: zero slots, not an error.
	if len(days[1].Slots) != 0 {
		t.Fatalf("day without shift should have no slots, got %v", days[1].Slots)
	}
}
