package model

import "time"

// Result values of a validation attempt.
const (
	ResultValid     = "VALID"
	ResultInvalid   = "INVALID"
	ResultDuplicate = "DUPLICATE"
	ResultError     = "ERROR"
)

// Reason values qualifying INVALID and DUPLICATE results.
const (
	ReasonNotFound    = "NOT_FOUND"
	ReasonDNIMismatch = "DNI_MISMATCH"
	ReasonNoRemaining = "NO_REMAINING"
)

// ValidationRecord is an append-only audit entry in `validation_records`.
// One row is written per concluded validation attempt, whatever its
// outcome.
type ValidationRecord struct {
	ID        uint64     `json:"id"`
	Locator   string     `json:"locator"`
	ServiceID *string    `json:"serviceId,omitempty"`
	DNI       string     `json:"dni,omitempty"`
	Result    string     `json:"result"`
	Reason    *string    `json:"reason,omitempty"`
	Reference *string    `json:"reference,omitempty"`
	TicketKey *string    `json:"ticketKey,omitempty"`
	UserID    *string    `json:"userId,omitempty"`
	Username  *string    `json:"username,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
