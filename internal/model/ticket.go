package model

// TicketCandidate is one slot that may be consumed against a locator.
// Candidates are produced fresh by the candidate source on every lookup;
// the validation engine never persists them.
//
// Fields:
//  TicketKey     – globally unique slot identifier assigned by the source.
//  Sequence      – preferred consumption order (ascending); nil sorts last.
//  BoundIdentity – identity document the slot is issued to, if any.
//  Reference     – operator facing label such as the ticket number.
type TicketCandidate struct {
	TicketKey     string  `json:"ticketKey"`
	Sequence      *int    `json:"sequence,omitempty"`
	BoundIdentity string  `json:"boundIdentity,omitempty"`
	Reference     string  `json:"reference,omitempty"`
	Locator       string  `json:"locator,omitempty"`
	ServiceID     *string `json:"serviceId,omitempty"`
}
