package model

// TimestampLayout is the ISO-8601 form used in responses.  Millisecond
// precision keeps replayed responses byte-identical after a round trip
// through the idempotency store.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ValidateLocatorResponse is returned to the caller and persisted verbatim
// for idempotent replays.
type ValidateLocatorResponse struct {
	Result              string      `json:"result"`
	Reason              string      `json:"reason,omitempty"`
	DuplicateRecordedAt string      `json:"duplicateRecordedAt,omitempty"`
	Ticket              *TicketInfo `json:"ticket,omitempty"`
	RemainingAfter      *int        `json:"remainingAfter,omitempty"`
	Timestamps          Timestamps  `json:"timestamps"`
}

// TicketInfo describes the slot consumed by a VALID outcome.
type TicketInfo struct {
	TicketID       string `json:"ticketId"`
	Ref            string `json:"ref,omitempty"`
	Sequence       *int   `json:"sequence,omitempty"`
	RemainingAfter *int   `json:"remainingAfter,omitempty"`
}

type Timestamps struct {
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}
