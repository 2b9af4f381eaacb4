package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SendFunc routes one claimed delivery to its channel sender.
type SendFunc func(ctx context.Context, d Delivery) error

type Worker struct {
	store  Store
	logger *slog.Logger
	send   SendFunc

	interval       time.Duration
	batchSize      int
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	attemptTimeout time.Duration
	staleAfter     time.Duration
}

type WorkerConfig struct {
	Interval       time.Duration
	BatchSize      int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	StaleAfter     time.Duration
}

func NewWorker(store Store, logger *slog.Logger, send SendFunc, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 30 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Minute
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	return &Worker{
		store:          store,
		logger:         logger,
		send:           send,
		interval:       cfg.Interval,
		batchSize:      cfg.BatchSize,
		baseBackoff:    cfg.BaseBackoff,
		maxBackoff:     cfg.MaxBackoff,
		attemptTimeout: cfg.AttemptTimeout,
		staleAfter:     cfg.StaleAfter,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("delivery batch failed", "err", err)
			}
		}
	}
}

// ProcessBatch claims due deliveries, attempts each over its channel, and
// records the outcome.
func (w *Worker) ProcessBatch(ctx context.Context) error {
	claimed, err := w.store.Claim(ctx, w.batchSize, w.staleAfter)
	if err != nil {
		return err
	}
	for _, d := range claimed {
		attemptCtx, cancel := context.WithTimeout(ctx, w.attemptTimeout)
		sendErr := w.send(attemptCtx, d)
		cancel()

		if err := w.recordOutcome(ctx, d, sendErr); err != nil {
			w.logger.Error("delivery outcome not recorded",
				"err", err, "delivery_id", d.ID, "channel", d.Channel)
		}
	}
	return nil
}

func (w *Worker) recordOutcome(ctx context.Context, d Delivery, sendErr error) error {
	attemptNo := d.AttemptCount + 1
	if sendErr == nil {
		if err := w.store.RecordSuccess(ctx, d, attemptNo); err != nil {
			return err
		}
		w.logger.Info("delivery succeeded",
			"delivery_id", d.ID, "channel", d.Channel, "reservation_id", d.ReservationID, "attempt", attemptNo)
		return nil
	}

	responseCode := 0
	var httpErr *HTTPError
	if errors.As(sendErr, &httpErr) {
		responseCode = httpErr.Code
	}
	terminal := attemptNo >= d.MaxAttempts
	next := time.Now().UTC().Add(w.Backoff(attemptNo))
	if err := w.store.RecordFailure(ctx, d, attemptNo, responseCode, next, sendErr.Error(), terminal); err != nil {
		return err
	}
	if terminal {
		w.logger.Error("delivery failed permanently",
			"delivery_id", d.ID, "channel", d.Channel, "reservation_id", d.ReservationID, "attempts", attemptNo)
	} else {
		w.logger.Warn("delivery attempt failed",
			"err", sendErr, "delivery_id", d.ID, "channel", d.Channel, "attempt", attemptNo, "next_attempt_at", next)
	}
	return nil
}

// Backoff doubles per attempt from the base, capped at the maximum. The
// first retry waits one base interval.
func (w *Worker) Backoff(attemptNo int) time.Duration {
	d := w.baseBackoff
	for i := 1; i < attemptNo; i++ {
		d *= 2
		if d >= w.maxBackoff {
			return w.maxBackoff
		}
	}
	if d > w.maxBackoff {
		return w.maxBackoff
	}
	return d
}
