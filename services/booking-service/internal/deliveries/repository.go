package deliveries

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/model"
)

// Channel keys accepted for notification deliveries.
const (
	ChannelEmail = "email"
	ChannelSlack = "slack"
	ChannelLine  = "line"
	ChannelLog   = "log"
)

func KnownChannel(c string) bool {
	switch c {
	case ChannelEmail, ChannelSlack, ChannelLine, ChannelLog:
		return true
	}
	return false
}

// ParseChannels splits a comma-separated channel list, dropping unknown
// keys. An empty result falls back to the log channel so status changes are
// never silently unobserved.
func ParseChannels(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" || !KnownChannel(part) {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		out = []string{ChannelLog}
	}
	return out
}

// Payload is the snapshot stored on each delivery row. The worker sends
// from this snapshot so later reservation edits do not change what was
// announced.
type Payload struct {
	ReservationID string `json:"reservation_id"`
	VenueID       string `json:"venue_id"`
	ProviderID    string `json:"provider_id,omitempty"`
	Status        string `json:"status"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	Actor         string `json:"actor"`
	Note          string `json:"note,omitempty"`
}

func NewPayload(res model.Reservation, evt model.StatusEvent) Payload {
	return Payload{
		ReservationID: res.ID,
		VenueID:       res.VenueID,
		ProviderID:    res.ProviderID,
		Status:        string(evt.Status),
		StartTime:     res.StartTime.UTC().Format(time.RFC3339),
		EndTime:       res.EndTime.UTC().Format(time.RFC3339),
		CustomerName:  res.CustomerName,
		CustomerEmail: res.CustomerEmail,
		CustomerPhone: res.CustomerPhone,
		Actor:         evt.Actor,
		Note:          evt.Note,
	}
}

type Repository struct {
	maxAttempts int
}

func NewRepository(maxAttempts int) *Repository {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Repository{maxAttempts: maxAttempts}
}

// Enqueue writes one pending delivery row per channel inside the
// transaction that recorded the status change, so a committed transition
// always has its deliveries and a rolled-back one never does.
func (r *Repository) Enqueue(ctx context.Context, tx pgx.Tx, eventID int64, p Payload, channels []string) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	for _, channel := range channels {
		_, err := tx.Exec(ctx, `
			INSERT INTO notification_deliveries
				(reservation_id, event_id, channel, status, payload, attempt_count, max_attempts, next_attempt_at)
			VALUES ($1, $2, $3, 'pending', $4, 0, $5, now())
		`, p.ReservationID, eventID, channel, raw, r.maxAttempts)
		if err != nil {
			return err
		}
	}
	return nil
}
