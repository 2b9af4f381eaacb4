package outbox

import (
	"encoding/json"
	"time"

	"github.com/yuto-kimura/salonbook/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table. The Kafka
// topic equals EventType. Downstream read-side collaborators (search
// indexing, guest calendar APIs) consume these; the core never reads them
// back.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the booking core.
const (
	EventReservationCreated       = "booking.reservation.created.v1"
	EventReservationStatusChanged = "booking.reservation.status_changed.v1"
	EventShiftChanged             = "booking.shift.changed.v1"
)

// MarshalReservation builds the payload shared by the reservation events.
func MarshalReservation(res model.Reservation) ([]byte, error) {
	return json.Marshal(map[string]any{
		"reservation_id": res.ID,
		"venue_id":       res.VenueID,
		"provider_id":    res.ProviderID,
		"start_time":     res.StartTime.UTC().Format(time.RFC3339),
		"end_time":       res.EndTime.UTC().Format(time.RFC3339),
		"status":         string(res.Status),
	})
}
