package model

import (
	"time"

	"github.com/yuto-kimura/salonbook/libs/interval"
)

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusDeclined  ReservationStatus = "declined"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
	StatusExpired   ReservationStatus = "expired"
)

func ParseReservationStatus(s string) (ReservationStatus, bool) {
	switch ReservationStatus(s) {
	case StatusPending, StatusConfirmed, StatusDeclined, StatusCancelled, StatusCompleted, StatusExpired:
		return ReservationStatus(s), true
	}
	return "", false
}

// ActiveStatuses are the statuses that count toward overlap and capacity
// checks.
var ActiveStatuses = []string{string(StatusPending), string(StatusConfirmed)}

// successors holds the legal transitions. Expired is reachable from any
// non-terminal status via the time-based sweep.
var successors = map[ReservationStatus][]ReservationStatus{
	StatusPending:   {StatusConfirmed, StatusDeclined, StatusCancelled, StatusExpired},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusExpired},
}

func (s ReservationStatus) Terminal() bool {
	switch s {
	case StatusDeclined, StatusCancelled, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether from → to is a legal status transition.
func CanTransition(from, to ReservationStatus) bool {
	for _, next := range successors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Reservation is a booked service slot. ProviderID is empty for venue-level
// bookings, which are bounded by the venue's room count instead of provider
// exclusivity. Rows are never deleted; terminal statuses are kept for audit.
type Reservation struct {
	ID              string
	VenueID         string
	ProviderID      string // empty when unassigned (venue-level)
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	BufferMinutes   int
	Status          ReservationStatus
	IdempotencyKey  string
	CapacityGroup   string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	PriceCents      int64
	PaymentRef      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r Reservation) Window() interval.Interval {
	return interval.Interval{Start: r.StartTime, End: r.EndTime}
}

// BufferedWindow is the window expanded by the reservation's buffer on both
// sides, the interval used for conflict checks against neighbours.
func (r Reservation) BufferedWindow() interval.Interval {
	return interval.Expand(r.Window(), time.Duration(r.BufferMinutes)*time.Minute)
}

// StatusEvent is one row of the append-only reservation status history,
// including the initial pending event written at creation.
type StatusEvent struct {
	ID            int64
	ReservationID string
	Status        ReservationStatus
	Actor         string
	Note          string
	CreatedAt     time.Time
}
