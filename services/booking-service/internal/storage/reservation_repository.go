package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/model"
)

type ReservationRepository struct {
	pool *db.Pool
}

func NewReservationRepository(pool *db.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

func (r *ReservationRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const reservationColumns = `
	id::text, venue_id::text, COALESCE(provider_id::text, ''), start_time, end_time,
	duration_minutes, buffer_minutes, status, COALESCE(idempotency_key, ''),
	capacity_group::text, customer_name, customer_email, customer_phone,
	price_cents, COALESCE(payment_ref, ''), created_at, updated_at`

// GetByIdempotencyKey returns the reservation previously created with the
// same key, locked for the rest of the transaction. The second return is
// false when no such reservation exists.
func (r *ReservationRepository) GetByIdempotencyKey(ctx context.Context, tx pgx.Tx, venueID, key string) (model.Reservation, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE venue_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, venueID, key)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Reservation{}, false, nil
	}
	if err != nil {
		return model.Reservation{}, false, err
	}
	return res, true, nil
}

func (r *ReservationRepository) Insert(ctx context.Context, tx pgx.Tx, res *model.Reservation) (string, error) {
	id := uuid.NewString()
	var providerID *string
	if res.ProviderID != "" {
		providerID = &res.ProviderID
	}
	var idempotencyKey *string
	if res.IdempotencyKey != "" {
		idempotencyKey = &res.IdempotencyKey
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO reservations
			(id, venue_id, provider_id, start_time, end_time, duration_minutes, buffer_minutes,
			 status, idempotency_key, capacity_group, customer_name, customer_email, customer_phone,
			 price_cents, payment_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, id, res.VenueID, providerID, res.StartTime, res.EndTime, res.DurationMinutes, res.BufferMinutes,
		res.Status, idempotencyKey, res.CapacityGroup, res.CustomerName, res.CustomerEmail, res.CustomerPhone,
		res.PriceCents, res.PaymentRef)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ReservationRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Reservation, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanReservation(row)
}

func (r *ReservationRepository) Get(ctx context.Context, id string) (model.Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
	`, id)
	return scanReservation(row)
}

func (r *ReservationRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status model.ReservationStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE reservations
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// InsertStatusEvent appends one row of the immutable status history and
// returns its id.
func (r *ReservationRepository) InsertStatusEvent(ctx context.Context, tx pgx.Tx, evt model.StatusEvent) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO reservation_status_events (reservation_id, status, actor, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, evt.ReservationID, evt.Status, evt.Actor, evt.Note).Scan(&id)
	return id, err
}

func (r *ReservationRepository) ListStatusEvents(ctx context.Context, reservationID string) ([]model.StatusEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, reservation_id::text, status, actor, note, created_at
		FROM reservation_status_events
		WHERE reservation_id = $1
		ORDER BY id
	`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.StatusEvent
	for rows.Next() {
		var evt model.StatusEvent
		var status string
		if err := rows.Scan(&evt.ID, &evt.ReservationID, &status, &evt.Actor, &evt.Note, &evt.CreatedAt); err != nil {
			return nil, err
		}
		evt.Status = model.ReservationStatus(status)
		events = append(events, evt)
	}
	return events, rows.Err()
}

func (r *ReservationRepository) ListByVenue(ctx context.Context, venueID string, limit int) ([]model.Reservation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE venue_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, venueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

// ListExpirable claims non-terminal reservations whose window ended before
// cutoff, for the expiry sweep. SKIP LOCKED keeps concurrent sweeps from
// fighting over rows.
func (r *ReservationRepository) ListExpirable(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]model.Reservation, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = ANY($1)
			AND end_time < $2
		ORDER BY end_time
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, model.ActiveStatuses, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

// VenueDefaults returns the venue's room count and default buffer minutes.
func (r *ReservationRepository) VenueDefaults(ctx context.Context, q db.Querier, venueID string) (rooms int, bufferMinutes int, err error) {
	err = q.QueryRow(ctx, `
		SELECT room_count, default_buffer_minutes
		FROM venues
		WHERE id = $1
	`, venueID).Scan(&rooms, &bufferMinutes)
	return rooms, bufferMinutes, err
}

func collectReservations(rows pgx.Rows) ([]model.Reservation, error) {
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanReservation(row rowScanner) (model.Reservation, error) {
	var res model.Reservation
	var status string
	err := row.Scan(
		&res.ID,
		&res.VenueID,
		&res.ProviderID,
		&res.StartTime,
		&res.EndTime,
		&res.DurationMinutes,
		&res.BufferMinutes,
		&status,
		&res.IdempotencyKey,
		&res.CapacityGroup,
		&res.CustomerName,
		&res.CustomerEmail,
		&res.CustomerPhone,
		&res.PriceCents,
		&res.PaymentRef,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return model.Reservation{}, err
	}
	res.Status = model.ReservationStatus(status)
	return res, nil
}

// NewCapacityGroup returns the capacity group for a new reservation: the
// venue itself when no provider is assigned.
func NewCapacityGroup(venueID, providerID string) string {
	if providerID == "" {
		return venueID
	}
	return providerID
}
