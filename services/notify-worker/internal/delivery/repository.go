package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// ClaimDue moves a batch of due pending rows to in_progress and returns
// them. SKIP LOCKED keeps concurrent workers off each other's rows; a
// worker that dies mid-claim leaves rows for the stale reclaim below.
func (r *Repository) ClaimDue(ctx context.Context, tx pgx.Tx, limit int) ([]Delivery, error) {
	rows, err := tx.Query(ctx, `
		UPDATE notification_deliveries
		SET status = 'in_progress', claimed_at = now()
		WHERE id IN (
			SELECT id FROM notification_deliveries
			WHERE status = 'pending' AND next_attempt_at <= now()
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, reservation_id::text, event_id, channel, payload, attempt_count, max_attempts, next_attempt_at
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		var raw []byte
		if err := rows.Scan(&d.ID, &d.ReservationID, &d.EventID, &d.Channel, &raw, &d.AttemptCount, &d.MaxAttempts, &d.NextAttemptAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &d.Payload); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReclaimStale returns in_progress rows older than the cutoff to pending so
// a crashed worker's claims are retried.
func (r *Repository) ReclaimStale(ctx context.Context, tx pgx.Tx, olderThan time.Duration) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'in_progress' AND claimed_at < now() - $1::interval
	`, olderThan.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertAttempt appends one attempt record. The attempt log is append-only.
// responseCode is the remote HTTP status when the channel surfaces one,
// zero otherwise.
func (r *Repository) InsertAttempt(ctx context.Context, tx pgx.Tx, deliveryID int64, attemptNo int, outcome string, responseCode int, sendErr string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notification_attempts (delivery_id, attempt_no, outcome, response_code, error)
		VALUES ($1, $2, $3, NULLIF($4, 0), NULLIF($5, ''))
	`, deliveryID, attemptNo, outcome, responseCode, sendErr)
	return err
}

func (r *Repository) MarkSucceeded(ctx context.Context, tx pgx.Tx, deliveryID int64, attemptCount int) error {
	_, err := tx.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'succeeded', attempt_count = $2, sent_at = now(), updated_at = now()
		WHERE id = $1
	`, deliveryID, attemptCount)
	return err
}

// MarkFailed records a failed attempt. A non-terminal failure goes back to
// pending with the given next attempt time; a terminal one becomes failed
// for good.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, deliveryID int64, attemptCount int, nextAttemptAt time.Time, lastError string, terminal bool) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	_, err := tx.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = $2, attempt_count = $3, next_attempt_at = $4, last_error = $5, updated_at = now()
		WHERE id = $1
	`, deliveryID, status, attemptCount, nextAttemptAt, lastError)
	return err
}

// Cancel stops further attempts for one delivery. Only non-terminal rows
// are touched; a terminal or unknown id leaves zero rows affected.
func (r *Repository) Cancel(ctx context.Context, tx pgx.Tx, deliveryID int64) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'in_progress')
	`, deliveryID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
