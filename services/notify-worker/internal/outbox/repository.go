package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	otelx "github.com/yuto-kimura/salonbook/libs/otel"
)

// Event types emitted for delivery outcomes.
const (
	EventNotificationSent   = "booking.notification.sent.v1"
	EventNotificationFailed = "booking.notification.failed.v1"
)

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Repository writes outcome events into the shared outbox table. The
// booking service's publisher drains the table; this worker only inserts.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}
