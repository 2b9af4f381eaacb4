package model

import (
	"errors"
	"testing"
	"time"
)

func TestNewBreaks(t *testing.T) {
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time {
		return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}
	shiftStart, shiftEnd := at(10, 0), at(18, 0)

	t.Run("empty", func(t *testing.T) {
		bs, err := NewBreaks(shiftStart, shiftEnd, nil)
		if err != nil || bs != nil {
			t.Fatalf("got %v, %v", bs, err)
		}
	})

	t.Run("sorted on construction", func(t *testing.T) {
		bs, err := NewBreaks(shiftStart, shiftEnd, []Break{
			{Start: at(15, 0), End: at(15, 30)},
			{Start: at(13, 0), End: at(14, 0)},
		})
		if err != nil {
			t.Fatal(err)
		}
		if !bs[0].Start.Equal(at(13, 0)) {
			t.Fatalf("breaks not sorted: %v", bs)
		}
	})

	t.Run("break outside shift", func(t *testing.T) {
		_, err := NewBreaks(shiftStart, shiftEnd, []Break{
			{Start: at(9, 0), End: at(10, 30)},
		})
		if !errors.Is(err, ErrInvalidBreaks) {
			t.Fatalf("want ErrInvalidBreaks, got %v", err)
		}
	})

	t.Run("overlapping breaks", func(t *testing.T) {
		_, err := NewBreaks(shiftStart, shiftEnd, []Break{
			{Start: at(13, 0), End: at(14, 0)},
			{Start: at(13, 30), End: at(15, 0)},
		})
		if !errors.Is(err, ErrInvalidBreaks) {
			t.Fatalf("want ErrInvalidBreaks, got %v", err)
		}
	})

	t.Run("touching breaks allowed", func(t *testing.T) {
		_, err := NewBreaks(shiftStart, shiftEnd, []Break{
			{Start: at(13, 0), End: at(14, 0)},
			{Start: at(14, 0), End: at(14, 30)},
		})
		if err != nil {
			t.Fatalf("touching breaks should be legal: %v", err)
		}
	})

	t.Run("inverted break", func(t *testing.T) {
		_, err := NewBreaks(shiftStart, shiftEnd, []Break{
			{Start: at(14, 0), End: at(13, 0)},
		})
		if !errors.Is(err, ErrInvalidTimeRange) {
			t.Fatalf("want ErrInvalidTimeRange, got %v", err)
		}
	})
}
