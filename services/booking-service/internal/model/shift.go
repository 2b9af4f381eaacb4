package model

import (
	"errors"
	"sort"
	"time"

	"github.com/yuto-kimura/salonbook/libs/interval"
)

type ShiftStatus string

const (
	ShiftAvailable   ShiftStatus = "available"
	ShiftUnavailable ShiftStatus = "unavailable"
)

func ParseShiftStatus(s string) (ShiftStatus, bool) {
	switch ShiftStatus(s) {
	case ShiftAvailable, ShiftUnavailable:
		return ShiftStatus(s), true
	}
	return "", false
}

var (
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidBreaks    = errors.New("invalid_breaks")
)

// Break is a sub-interval of a shift during which the provider is not
// bookable.
type Break struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (b Break) Interval() interval.Interval {
	return interval.Interval{Start: b.Start, End: b.End}
}

// Breaks is the validated break list of a shift: each break is a proper
// interval nested in the shift window, and no two breaks overlap.
// Construct with NewBreaks; a zero value means no breaks.
type Breaks []Break

func NewBreaks(shiftStart, shiftEnd time.Time, raw []Break) (Breaks, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	shift := interval.Interval{Start: shiftStart, End: shiftEnd}

	out := make(Breaks, len(raw))
	copy(out, raw)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	for i, b := range out {
		if !b.End.After(b.Start) {
			return nil, ErrInvalidTimeRange
		}
		if !interval.Contains(shift, b.Interval()) {
			return nil, ErrInvalidBreaks
		}
		if i > 0 && interval.Overlaps(out[i-1].Interval(), b.Interval()) {
			return nil, ErrInvalidBreaks
		}
	}
	return out, nil
}

func (bs Breaks) Intervals() []interval.Interval {
	if len(bs) == 0 {
		return nil
	}
	out := make([]interval.Interval, len(bs))
	for i, b := range bs {
		out[i] = b.Interval()
	}
	return out
}

// Shift is a provider's declared working window for one date.
type Shift struct {
	ID         string
	VenueID    string
	ProviderID string
	WorkDate   time.Time // midnight UTC of the calendar date
	StartTime  time.Time
	EndTime    time.Time
	Breaks     Breaks
	Status     ShiftStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s Shift) Window() interval.Interval {
	return interval.Interval{Start: s.StartTime, End: s.EndTime}
}
