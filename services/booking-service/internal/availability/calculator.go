package availability

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/libs/interval"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/model"
)

// Rejection reasons returned by IsBookable. All applicable reasons are
// reported, not just the first.
const (
	ReasonInvalidTimeRange = "invalid_time_range"
	ReasonNoShift          = "no_shift"
	ReasonOnBreak          = "on_break"
	ReasonOverlap          = "overlap_existing_reservation"
	ReasonCapacity         = "capacity_exceeded"
	ReasonInternal         = "internal_error"
)

type Decision struct {
	OK      bool
	Reasons []string
}

func reject(reasons ...string) Decision {
	return Decision{OK: false, Reasons: reasons}
}

// Store is the persistence surface the calculator reads. Every method takes
// a db.Querier so the same check runs against the pool for display reads and
// against the open transaction at booking time.
type Store interface {
	// ShiftsForProvider returns shifts whose window intersects [from, to).
	ShiftsForProvider(ctx context.Context, q db.Querier, providerID string, from, to time.Time) ([]model.Shift, error)
	// ProviderBusy returns the buffer-expanded windows of active
	// reservations for the provider intersecting win, excluding the
	// reservation with excludeID (empty to exclude nothing).
	ProviderBusy(ctx context.Context, q db.Querier, providerID string, win interval.Interval, excludeID string) ([]interval.Interval, error)
	// VenueBusy returns the raw windows of active venue-level
	// (provider-less) reservations for the venue intersecting win.
	VenueBusy(ctx context.Context, q db.Querier, venueID string, win interval.Interval) ([]interval.Interval, error)
	// VenueRoomCount returns the venue's configured concurrent capacity.
	VenueRoomCount(ctx context.Context, q db.Querier, venueID string) (int, error)
}

// Request is a candidate booking window to evaluate.
type Request struct {
	VenueID    string
	ProviderID string // empty for venue-level bookings
	Window     interval.Interval
	Buffer     time.Duration
	// ExcludeReservationID is set when re-evaluating an existing
	// reservation so it does not conflict with itself.
	ExcludeReservationID string
}

// Calculator answers "is this window bookable" and "what slots are free".
// It is the only conflict-detection authority; the cached calendar
// projection is display-only.
type Calculator struct {
	store  Store
	logger *slog.Logger
}

func NewCalculator(store Store, logger *slog.Logger) *Calculator {
	return &Calculator{store: store, logger: logger}
}

// IsBookable evaluates req and accumulates every applicable rejection
// reason. Unexpected store errors fail closed: the decision denies the
// booking with reason internal_error, and the error is returned for the
// caller to log. A malformed window is rejected before any query runs.
func (c *Calculator) IsBookable(ctx context.Context, q db.Querier, req Request) (Decision, error) {
	if !req.Window.End.After(req.Window.Start) {
		return reject(ReasonInvalidTimeRange), nil
	}

	if req.ProviderID == "" {
		return c.checkVenueCapacity(ctx, q, req)
	}

	var reasons []string

	shifts, err := c.store.ShiftsForProvider(ctx, q, req.ProviderID, req.Window.Start, req.Window.End)
	if err != nil {
		c.logger.Error("availability shift lookup failed", "err", err, "provider_id", req.ProviderID)
		return reject(ReasonInternal), err
	}
	covering := coveringShift(shifts, req.Window)
	if covering == nil {
		reasons = append(reasons, ReasonNoShift)
	} else {
		for _, b := range covering.Breaks {
			if interval.Overlaps(req.Window, b.Interval()) {
				reasons = append(reasons, ReasonOnBreak)
				break
			}
		}
	}

	busy, err := c.store.ProviderBusy(ctx, q, req.ProviderID, interval.Expand(req.Window, req.Buffer), req.ExcludeReservationID)
	if err != nil {
		c.logger.Error("availability reservation lookup failed", "err", err, "provider_id", req.ProviderID)
		return reject(ReasonInternal), err
	}
	expanded := interval.Expand(req.Window, req.Buffer)
	for _, b := range busy {
		if interval.Overlaps(expanded, b) {
			reasons = append(reasons, ReasonOverlap)
			break
		}
	}

	if len(reasons) > 0 {
		return reject(reasons...), nil
	}
	return Decision{OK: true}, nil
}

func (c *Calculator) checkVenueCapacity(ctx context.Context, q db.Querier, req Request) (Decision, error) {
	rooms, err := c.store.VenueRoomCount(ctx, q, req.VenueID)
	if err != nil {
		c.logger.Error("availability venue lookup failed", "err", err, "venue_id", req.VenueID)
		return reject(ReasonInternal), err
	}
	busy, err := c.store.VenueBusy(ctx, q, req.VenueID, req.Window)
	if err != nil {
		c.logger.Error("availability venue reservations lookup failed", "err", err, "venue_id", req.VenueID)
		return reject(ReasonInternal), err
	}
	// Semaphore semantics: the candidate plus the peak number of already
	// overlapping active reservations must fit in the room count.
	if maxConcurrent(busy, req.Window)+1 > rooms {
		return reject(ReasonCapacity), nil
	}
	return Decision{OK: true}, nil
}

// coveringShift returns the first available-status shift whose window fully
// contains win, or nil.
func coveringShift(shifts []model.Shift, win interval.Interval) *model.Shift {
	for i := range shifts {
		s := &shifts[i]
		if s.Status != model.ShiftAvailable {
			continue
		}
		if interval.Contains(s.Window(), win) {
			return s
		}
	}
	return nil
}

// maxConcurrent returns the peak number of intervals overlapping any single
// instant within win.
func maxConcurrent(ivs []interval.Interval, win interval.Interval) int {
	type event struct {
		at    time.Time
		delta int
	}
	var events []event
	for _, iv := range ivs {
		if !interval.Overlaps(iv, win) {
			continue
		}
		start, end := iv.Start, iv.End
		if start.Before(win.Start) {
			start = win.Start
		}
		if end.After(win.End) {
			end = win.End
		}
		events = append(events, event{at: start, delta: +1}, event{at: end, delta: -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			// Ends sort before starts: half-open intervals touching at a
			// point do not overlap.
			return events[i].delta < events[j].delta
		}
		return events[i].at.Before(events[j].at)
	})

	var cur, peak int
	for _, e := range events {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	return peak
}

type Slot struct {
	Start  time.Time
	End    time.Time
	Status string // "open" | "blocked"
}

type DaySlots struct {
	Date  time.Time // midnight UTC
	Slots []Slot
}

// FreeSlots computes the open and blocked slots for each date in
// [dateFrom, dateTo] (inclusive calendar dates, midnight UTC). Breaks and
// buffer-expanded active reservations are subtracted from each available
// shift. Dates without shifts produce an empty slot list.
func (c *Calculator) FreeSlots(ctx context.Context, q db.Querier, providerID string, dateFrom, dateTo time.Time) ([]DaySlots, error) {
	rangeStart := dateFrom
	rangeEnd := dateTo.AddDate(0, 0, 1)

	shifts, err := c.store.ShiftsForProvider(ctx, q, providerID, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	busy, err := c.store.ProviderBusy(ctx, q, providerID, interval.Interval{Start: rangeStart, End: rangeEnd}, "")
	if err != nil {
		return nil, err
	}

	byDate := make(map[time.Time][]model.Shift)
	for _, s := range shifts {
		d := s.WorkDate
		byDate[d] = append(byDate[d], s)
	}

	var days []DaySlots
	for d := dateFrom; !d.After(dateTo); d = d.AddDate(0, 0, 1) {
		day := DaySlots{Date: d, Slots: []Slot{}}
		for _, s := range byDate[d] {
			if s.Status != model.ShiftAvailable {
				continue
			}
			day.Slots = append(day.Slots, shiftSlots(s, busy)...)
		}
		days = append(days, day)
	}
	return days, nil
}

// VenueBlockedSlots reports, per date, the intervals during which the venue
// is at capacity for venue-level bookings. Open time is implicit; only the
// full stretches are emitted.
func (c *Calculator) VenueBlockedSlots(ctx context.Context, q db.Querier, venueID string, dateFrom, dateTo time.Time) ([]DaySlots, error) {
	rangeStart := dateFrom
	rangeEnd := dateTo.AddDate(0, 0, 1)

	rooms, err := c.store.VenueRoomCount(ctx, q, venueID)
	if err != nil {
		return nil, err
	}
	busy, err := c.store.VenueBusy(ctx, q, venueID, interval.Interval{Start: rangeStart, End: rangeEnd})
	if err != nil {
		return nil, err
	}

	var days []DaySlots
	for d := dateFrom; !d.After(dateTo); d = d.AddDate(0, 0, 1) {
		dayWin := interval.Interval{Start: d, End: d.AddDate(0, 0, 1)}
		day := DaySlots{Date: d, Slots: []Slot{}}
		for _, full := range fullIntervals(busy, rooms, dayWin) {
			day.Slots = append(day.Slots, Slot{Start: full.Start, End: full.End, Status: "blocked"})
		}
		days = append(days, day)
	}
	return days, nil
}

// fullIntervals returns the stretches of win during which at least capacity
// intervals overlap simultaneously.
func fullIntervals(ivs []interval.Interval, capacity int, win interval.Interval) []interval.Interval {
	if capacity <= 0 {
		return []interval.Interval{win}
	}
	type event struct {
		at    time.Time
		delta int
	}
	var events []event
	for _, iv := range ivs {
		if !interval.Overlaps(iv, win) {
			continue
		}
		start, end := iv.Start, iv.End
		if start.Before(win.Start) {
			start = win.Start
		}
		if end.After(win.End) {
			end = win.End
		}
		events = append(events, event{at: start, delta: +1}, event{at: end, delta: -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			return events[i].delta < events[j].delta
		}
		return events[i].at.Before(events[j].at)
	})

	var out []interval.Interval
	var cur int
	var fullSince time.Time
	full := false
	for _, e := range events {
		cur += e.delta
		if !full && cur >= capacity {
			full = true
			fullSince = e.at
		} else if full && cur < capacity {
			full = false
			if e.at.After(fullSince) {
				out = append(out, interval.Interval{Start: fullSince, End: e.at})
			}
		}
	}
	return interval.Merge(out)
}

func shiftSlots(s model.Shift, busy []interval.Interval) []Slot {
	window := s.Window()
	blocks := append(s.Breaks.Intervals(), busy...)

	var slots []Slot
	for _, free := range interval.Subtract(window, blocks) {
		slots = append(slots, Slot{Start: free.Start, End: free.End, Status: "open"})
	}
	for _, blocked := range interval.Merge(blocks) {
		if !interval.Overlaps(blocked, window) {
			continue
		}
		start, end := blocked.Start, blocked.End
		if start.Before(window.Start) {
			start = window.Start
		}
		if end.After(window.End) {
			end = window.End
		}
		slots = append(slots, Slot{Start: start, End: end, Status: "blocked"})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}
