package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
//
// All operations assume well-formed inputs (Start < End); callers validate
// before handing intervals to this package.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether a and b share any instant.
// Half-open semantics: [a.Start,a.End) overlaps [b.Start,b.End) iff
// a.Start < b.End && b.Start < a.End. Touching endpoints do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner Interval) bool {
	return !inner.Start.Before(outer.Start) && !inner.End.After(outer.End)
}

// Expand pads both sides of iv by d. Used to apply booking buffers before
// conflict checks.
func Expand(iv Interval, d time.Duration) Interval {
	if d <= 0 {
		return iv
	}
	return Interval{Start: iv.Start.Add(-d), End: iv.End.Add(d)}
}

// Merge sorts the given intervals and coalesces overlapping or touching
// neighbours. The input slice is not modified.
func Merge(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := make([]Interval, len(ivs))
	copy(sorted, ivs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes the blocking intervals from window and returns the
// remaining sub-intervals in chronological order. Blocks are merged first,
// so overlapping blocks count once and adjacent free gaps stay contiguous.
func Subtract(window Interval, blocks []Interval) []Interval {
	var free []Interval
	cursor := window.Start
	for _, b := range Merge(blocks) {
		if !b.End.After(window.Start) || !b.Start.Before(window.End) {
			continue
		}
		if b.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(window.End) {
		free = append(free, Interval{Start: cursor, End: window.End})
	}
	return free
}
