package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/calendar"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/deliveries"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/model"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/outbox"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/storage"
)

// Expirer moves reservations whose end time has passed, plus a grace
// period, from the active statuses to expired. It records the same
// status event, notification rows and outbox event as an explicit
// transition would.
type Expirer struct {
	repo       *storage.ReservationRepository
	deliveries *deliveries.Repository
	outbox     *outbox.Repository
	sync       *calendar.Sync
	logger     *slog.Logger
	channels   []string

	grace     time.Duration
	batchSize int
}

func NewExpirer(
	repo *storage.ReservationRepository,
	deliveryRepo *deliveries.Repository,
	outboxRepo *outbox.Repository,
	sync *calendar.Sync,
	logger *slog.Logger,
	channels []string,
	grace time.Duration,
) *Expirer {
	if grace < 0 {
		grace = 0
	}
	if len(channels) == 0 {
		channels = []string{deliveries.ChannelLog}
	}
	return &Expirer{
		repo:       repo,
		deliveries: deliveryRepo,
		outbox:     outboxRepo,
		sync:       sync,
		logger:     logger,
		channels:   channels,
		grace:      grace,
		batchSize:  100,
	}
}

func (e *Expirer) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.SweepOnce(ctx)
			if err != nil {
				e.logger.Error("expiry sweep failed", "err", err)
			} else if n > 0 {
				e.logger.Info("expired reservations", "count", n)
			}
		}
	}
}

// SweepOnce expires one batch and reports how many rows it moved.
// SKIP LOCKED on the select keeps concurrent instances from fighting
// over the same rows.
func (e *Expirer) SweepOnce(ctx context.Context) (int, error) {
	tx, err := e.repo.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cutoff := time.Now().UTC().Add(-e.grace)
	batch, err := e.repo.ListExpirable(ctx, tx, cutoff, e.batchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	expired := make([]model.Reservation, 0, len(batch))
	for _, res := range batch {
		if !model.CanTransition(res.Status, model.StatusExpired) {
			continue
		}
		if err := e.repo.UpdateStatus(ctx, tx, res.ID, model.StatusExpired); err != nil {
			return 0, err
		}
		res.Status = model.StatusExpired

		evt := model.StatusEvent{
			ReservationID: res.ID,
			Status:        model.StatusExpired,
			Actor:         "system",
			Note:          "end time passed",
		}
		eventID, err := e.repo.InsertStatusEvent(ctx, tx, evt)
		if err != nil {
			return 0, err
		}
		if err := e.deliveries.Enqueue(ctx, tx, eventID, deliveries.NewPayload(res, evt), e.channels); err != nil {
			return 0, err
		}
		if err := e.insertEvent(ctx, tx, res); err != nil {
			return 0, err
		}
		expired = append(expired, res)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	for _, res := range expired {
		if res.ProviderID != "" {
			day := res.StartTime.UTC().Truncate(24 * time.Hour)
			e.sync.Recompute(ctx, res.ProviderID, res.VenueID, day)
		}
	}
	return len(expired), nil
}

func (e *Expirer) insertEvent(ctx context.Context, tx pgx.Tx, res model.Reservation) error {
	payload, err := outbox.MarshalReservation(res)
	if err != nil {
		return err
	}
	return e.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "reservation",
		AggregateID:   res.ID,
		EventType:     outbox.EventReservationStatusChanged,
		Payload:       payload,
	})
}
