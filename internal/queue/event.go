// Package queue defines the validation event exchanged over the message
// broker, its publisher and the background consumer that logs it.
package queue

import (
	"github.com/google/uuid"
)

// ValidationQueueName is the durable queue validation events are routed to.
const ValidationQueueName = "ticket.validated"

// ValidationEvent is published after a validation attempt commits.  It
// carries enough for downstream consumers to log, notify or aggregate
// without querying the ledger.
type ValidationEvent struct {
	EventID     string  `json:"event_id"`
	Result      string  `json:"result"`
	Reason      string  `json:"reason,omitempty"`
	Locator     string  `json:"locator"`
	ServiceID   *string `json:"service_id,omitempty"`
	TicketKey   string  `json:"ticket_key,omitempty"`
	Reference   string  `json:"reference,omitempty"`
	Remaining   *int    `json:"remaining_after,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
	Username    string  `json:"username,omitempty"`
	ValidatedAt string  `json:"validated_at"`
}

// NewEventID returns a random identifier consumers can deduplicate on.
func NewEventID() string { return uuid.NewString() }
