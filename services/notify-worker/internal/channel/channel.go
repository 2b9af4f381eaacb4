package channel

import (
	"context"
	"fmt"

	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/delivery"
)

// Sender pushes one delivery payload out over a single channel. Senders are
// stateless; the worker owns retries and bookkeeping.
type Sender interface {
	Name() string
	Send(ctx context.Context, p delivery.Payload) error
}

// Subject renders the one-line summary used by every channel.
func Subject(p delivery.Payload) string {
	return fmt.Sprintf("Reservation %s: %s", p.Status, p.StartTime)
}

// Body renders the plain-text message shared by email, Slack and LINE.
func Body(p delivery.Payload) string {
	msg := fmt.Sprintf("Reservation %s for %s is now %s (%s to %s).",
		p.ReservationID, p.CustomerName, p.Status, p.StartTime, p.EndTime)
	if p.Note != "" {
		msg += " Note: " + p.Note
	}
	return msg
}
