package interval

import (
	"testing"
	"time"
)

var day = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func iv(sh, sm, eh, em int) Interval {
	return Interval{Start: at(sh, sm), End: at(eh, em)}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"disjoint", iv(9, 0, 10, 0), iv(11, 0, 12, 0), false},
		{"touching endpoints", iv(9, 0, 10, 0), iv(10, 0, 11, 0), false},
		{"partial overlap", iv(9, 0, 10, 30), iv(10, 0, 11, 0), true},
		{"contained", iv(9, 0, 12, 0), iv(10, 0, 11, 0), true},
		{"identical", iv(9, 0, 10, 0), iv(9, 0, 10, 0), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(tc.a, tc.b); got != tc.want {
				t.Fatalf("Overlaps(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got := Overlaps(tc.b, tc.a); got != tc.want {
				t.Fatalf("Overlaps is not symmetric for %v, %v", tc.a, tc.b)
			}
		})
	}
}

func TestContains(t *testing.T) {
	outer := iv(10, 0, 18, 0)
	if !Contains(outer, iv(10, 0, 18, 0)) {
		t.Fatal("interval should contain itself")
	}
	if !Contains(outer, iv(13, 0, 14, 0)) {
		t.Fatal("expected containment")
	}
	if Contains(outer, iv(9, 30, 11, 0)) {
		t.Fatal("starts before outer")
	}
	if Contains(outer, iv(17, 0, 18, 30)) {
		t.Fatal("ends after outer")
	}
}

func TestExpand(t *testing.T) {
	got := Expand(iv(10, 0, 11, 0), 15*time.Minute)
	want := iv(9, 45, 11, 15)
	if !got.Start.Equal(want.Start) || !got.End.Equal(want.End) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
	same := Expand(iv(10, 0, 11, 0), 0)
	if !same.Start.Equal(at(10, 0)) || !same.End.Equal(at(11, 0)) {
		t.Fatalf("Expand with zero pad changed the interval: %v", same)
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]Interval{
		iv(13, 0, 14, 0),
		iv(9, 0, 10, 0),
		iv(9, 30, 11, 0),
		iv(11, 0, 11, 30),
	})
	want := []Interval{iv(9, 0, 11, 30), iv(13, 0, 14, 0)}
	assertIntervals(t, got, want)
}

func TestSubtract(t *testing.T) {
	window := iv(10, 0, 18, 0)

	t.Run("no blocks", func(t *testing.T) {
		assertIntervals(t, Subtract(window, nil), []Interval{window})
	})

	t.Run("single break", func(t *testing.T) {
		got := Subtract(window, []Interval{iv(13, 0, 14, 0)})
		assertIntervals(t, got, []Interval{iv(10, 0, 13, 0), iv(14, 0, 18, 0)})
	})

	t.Run("block straddles window start", func(t *testing.T) {
		got := Subtract(window, []Interval{iv(9, 0, 10, 30)})
		assertIntervals(t, got, []Interval{iv(10, 30, 18, 0)})
	})

	t.Run("block straddles window end", func(t *testing.T) {
		got := Subtract(window, []Interval{iv(17, 30, 19, 0)})
		assertIntervals(t, got, []Interval{iv(10, 0, 17, 30)})
	})

	t.Run("overlapping blocks merge", func(t *testing.T) {
		got := Subtract(window, []Interval{iv(12, 0, 13, 0), iv(12, 30, 14, 0)})
		assertIntervals(t, got, []Interval{iv(10, 0, 12, 0), iv(14, 0, 18, 0)})
	})

	t.Run("window fully blocked", func(t *testing.T) {
		got := Subtract(window, []Interval{iv(9, 0, 19, 0)})
		if len(got) != 0 {
			t.Fatalf("expected no free intervals, got %v", got)
		}
	})

	t.Run("block outside window ignored", func(t *testing.T) {
		got := Subtract(window, []Interval{iv(8, 0, 9, 0), iv(19, 0, 20, 0)})
		assertIntervals(t, got, []Interval{window})
	})
}

func assertIntervals(t *testing.T, got, want []Interval) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d intervals (%v), want %d (%v)", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval %d = %v, want %v", i, got[i], want[i])
		}
	}
}
