package channel

import (
	"context"
	"log/slog"

	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/delivery"
)

// LogSender writes deliveries to the structured log. It is the fallback
// channel and the one used in development.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, p delivery.Payload) error {
	s.logger.Info("notification",
		"reservation_id", p.ReservationID,
		"venue_id", p.VenueID,
		"status", p.Status,
		"customer", p.CustomerName,
		"start_time", p.StartTime,
	)
	return nil
}
