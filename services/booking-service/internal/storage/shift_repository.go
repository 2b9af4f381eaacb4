package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/model"
)

type ShiftRepository struct {
	pool *db.Pool
}

func NewShiftRepository(pool *db.Pool) *ShiftRepository {
	return &ShiftRepository{pool: pool}
}

func (r *ShiftRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockProvider serializes writers touching one provider's schedule for the
// duration of the transaction. Released automatically at commit/rollback.
func LockProvider(ctx context.Context, tx pgx.Tx, providerID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "provider:"+providerID)
	return err
}

// LockVenue serializes venue-level capacity checks the same way.
func LockVenue(ctx context.Context, tx pgx.Tx, venueID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "venue:"+venueID)
	return err
}

func (r *ShiftRepository) Insert(ctx context.Context, tx pgx.Tx, s *model.Shift) (string, error) {
	id := uuid.NewString()
	breaks, err := json.Marshal(s.Breaks)
	if err != nil {
		return "", err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO shifts (id, venue_id, provider_id, work_date, start_time, end_time, breaks, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, s.VenueID, s.ProviderID, s.WorkDate, s.StartTime, s.EndTime, breaks, s.Status)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ShiftRepository) Update(ctx context.Context, tx pgx.Tx, s *model.Shift) error {
	breaks, err := json.Marshal(s.Breaks)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE shifts
		SET work_date = $2,
			start_time = $3,
			end_time = $4,
			breaks = $5,
			status = $6,
			updated_at = now()
		WHERE id = $1
	`, s.ID, s.WorkDate, s.StartTime, s.EndTime, breaks, s.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ShiftRepository) Delete(ctx context.Context, tx pgx.Tx, id string) (model.Shift, error) {
	row := tx.QueryRow(ctx, `
		DELETE FROM shifts
		WHERE id = $1
		RETURNING id, venue_id::text, provider_id::text, work_date, start_time, end_time, breaks, status, created_at, updated_at
	`, id)
	return scanShift(row)
}

func (r *ShiftRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Shift, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, venue_id::text, provider_id::text, work_date, start_time, end_time, breaks, status, created_at, updated_at
		FROM shifts
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanShift(row)
}

// OverlapExists reports whether another shift of the same provider
// intersects [start, end). excludeID skips the shift being updated.
func (r *ShiftRepository) OverlapExists(ctx context.Context, q db.Querier, providerID string, start, end time.Time, excludeID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM shifts
			WHERE provider_id = $1
				AND start_time < $3
				AND end_time > $2
				AND ($4 = '' OR id::text <> $4)
		)
	`, providerID, start, end, excludeID).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShift(row rowScanner) (model.Shift, error) {
	var s model.Shift
	var rawBreaks []byte
	var status string
	err := row.Scan(
		&s.ID,
		&s.VenueID,
		&s.ProviderID,
		&s.WorkDate,
		&s.StartTime,
		&s.EndTime,
		&rawBreaks,
		&status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return model.Shift{}, err
	}
	s.Status = model.ShiftStatus(status)
	if len(rawBreaks) > 0 {
		if err := json.Unmarshal(rawBreaks, &s.Breaks); err != nil {
			return model.Shift{}, err
		}
	}
	s.WorkDate = s.WorkDate.UTC()
	return s, nil
}

// IsConflict matches Postgres exclusion-constraint violations, the backstop
// for races the advisory locks should already have serialized.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
