package delivery

import "time"

// Delivery statuses. pending rows with next_attempt_at in the past are due;
// succeeded, failed and cancelled are terminal.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Attempt outcomes recorded in the append-only attempt log.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// HTTPError is returned by HTTP-backed senders on a non-2xx response so
// the remote status code lands on the attempt row next to the error text.
type HTTPError struct {
	Code int
	Msg  string
}

func (e *HTTPError) Error() string { return e.Msg }

// Payload is the reservation snapshot stored on the delivery row at enqueue
// time. The worker renders messages from this snapshot only.
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

type Delivery struct {
	ID            int64
	ReservationID string
	EventID       int64
	Channel       string
	Payload       Payload
	AttemptCount  int
	MaxAttempts   int
	NextAttemptAt time.Time
}
