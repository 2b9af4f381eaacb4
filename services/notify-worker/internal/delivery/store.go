package delivery

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/outbox"
)

// Store is the persistence surface the worker loop and the operator
// endpoints drive. Each call is atomic on its own.
type Store interface {
	Claim(ctx context.Context, batchSize int, staleAfter time.Duration) ([]Delivery, error)
	RecordSuccess(ctx context.Context, d Delivery, attemptNo int) error
	RecordFailure(ctx context.Context, d Delivery, attemptNo, responseCode int, nextAttemptAt time.Time, sendErr string, terminal bool) error
	Cancel(ctx context.Context, deliveryID int64) (bool, error)
}

// PGStore runs each Store call in one Postgres transaction, pairing the
// delivery bookkeeping with the matching outbox event.
type PGStore struct {
	pool   *db.Pool
	repo   *Repository
	outbox *outbox.Repository
	logger *slog.Logger
}

func NewPGStore(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, logger *slog.Logger) *PGStore {
	return &PGStore{pool: pool, repo: repo, outbox: outboxRepo, logger: logger}
}

// Claim reclaims stale in_progress rows, then moves a batch of due rows to
// in_progress. The claim commits before any send happens so a slow channel
// conversation never holds row locks.
func (s *PGStore) Claim(ctx context.Context, batchSize int, staleAfter time.Duration) ([]Delivery, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if n, err := s.repo.ReclaimStale(ctx, tx, staleAfter); err != nil {
		return nil, err
	} else if n > 0 {
		s.logger.Warn("reclaimed stale deliveries", "count", n)
	}
	claimed, err := s.repo.ClaimDue(ctx, tx, batchSize)
	if err != nil {
		return nil, err
	}
	return claimed, tx.Commit(ctx)
}

func (s *PGStore) RecordSuccess(ctx context.Context, d Delivery, attemptNo int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.repo.InsertAttempt(ctx, tx, d.ID, attemptNo, OutcomeSuccess, 0, ""); err != nil {
		return err
	}
	if err := s.repo.MarkSucceeded(ctx, tx, d.ID, attemptNo); err != nil {
		return err
	}
	if err := s.insertOutcomeEvent(ctx, tx, d, outbox.EventNotificationSent, ""); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) RecordFailure(ctx context.Context, d Delivery, attemptNo, responseCode int, nextAttemptAt time.Time, sendErr string, terminal bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.repo.InsertAttempt(ctx, tx, d.ID, attemptNo, OutcomeFailure, responseCode, sendErr); err != nil {
		return err
	}
	if err := s.repo.MarkFailed(ctx, tx, d.ID, attemptNo, nextAttemptAt, sendErr, terminal); err != nil {
		return err
	}
	if terminal {
		if err := s.insertOutcomeEvent(ctx, tx, d, outbox.EventNotificationFailed, sendErr); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Cancel(ctx context.Context, deliveryID int64) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := s.repo.Cancel(ctx, tx, deliveryID)
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit(ctx)
}

func (s *PGStore) insertOutcomeEvent(ctx context.Context, tx pgx.Tx, d Delivery, eventType, reason string) error {
	payload, err := json.Marshal(map[string]any{
		"reservation_id": d.ReservationID,
		"delivery_id":    d.ID,
		"channel":        d.Channel,
		"status":         d.Payload.Status,
		"error_reason":   reason,
		"occurred_at":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   d.ReservationID,
		EventType:     eventType,
		Payload:       payload,
	})
}
