package storage

import (
	"context"
	"time"

	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/libs/interval"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/model"
)

// AvailabilityStore backs the availability calculator with SQL. Every
// method accepts a db.Querier so the calculator's checks run against the
// pool for reads and inside the booking transaction at write time.
type AvailabilityStore struct{}

func NewAvailabilityStore() *AvailabilityStore {
	return &AvailabilityStore{}
}

func (s *AvailabilityStore) ShiftsForProvider(ctx context.Context, q db.Querier, providerID string, from, to time.Time) ([]model.Shift, error) {
	rows, err := q.Query(ctx, `
		SELECT id, venue_id::text, provider_id::text, work_date, start_time, end_time, breaks, status, created_at, updated_at
		FROM shifts
		WHERE provider_id = $1
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shifts []model.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, sh)
	}
	return shifts, rows.Err()
}

func (s *AvailabilityStore) ProviderBusy(ctx context.Context, q db.Querier, providerID string, win interval.Interval, excludeID string) ([]interval.Interval, error) {
	// Each reservation is expanded by its own buffer; the overlap condition
	// matches the expanded window against the query window.
	rows, err := q.Query(ctx, `
		SELECT start_time - make_interval(mins => buffer_minutes),
			end_time + make_interval(mins => buffer_minutes)
		FROM reservations
		WHERE provider_id = $1
			AND status = ANY($2)
			AND start_time - make_interval(mins => buffer_minutes) < $4
			AND end_time + make_interval(mins => buffer_minutes) > $3
			AND ($5 = '' OR id::text <> $5)
		ORDER BY start_time
	`, providerID, model.ActiveStatuses, win.Start, win.End, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIntervals(rows)
}

func (s *AvailabilityStore) VenueBusy(ctx context.Context, q db.Querier, venueID string, win interval.Interval) ([]interval.Interval, error) {
	rows, err := q.Query(ctx, `
		SELECT start_time, end_time
		FROM reservations
		WHERE venue_id = $1
			AND provider_id IS NULL
			AND status = ANY($2)
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time
	`, venueID, model.ActiveStatuses, win.Start, win.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIntervals(rows)
}

func (s *AvailabilityStore) VenueRoomCount(ctx context.Context, q db.Querier, venueID string) (int, error) {
	var rooms int
	err := q.QueryRow(ctx, `
		SELECT room_count
		FROM venues
		WHERE id = $1
	`, venueID).Scan(&rooms)
	return rooms, err
}

type intervalRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectIntervals(rows intervalRows) ([]interval.Interval, error) {
	var out []interval.Interval
	for rows.Next() {
		var iv interval.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}
