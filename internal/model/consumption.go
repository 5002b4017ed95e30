package model

import "time"

// Consumption is a durable claim of one ticket key, stored in the
// `ticket_consumptions` table.  At most one row ever exists per key; rows
// are never updated and only removed by the gated administrative reset.
//
// Fields:
//  TicketKey – primary key, the claimed slot.
//  Locator   – locator the slot was validated under.
//  ServiceID – service filter of the request (nullable).
//  Actor     – who validated it (nullable columns when anonymous).
//  DNI       – normalized identity document that was accepted.
//  CreatedAt – claim time.
type Consumption struct {
	TicketKey string
	Locator   string
	ServiceID *string
	Actor     Actor
	DNI       string
	CreatedAt time.Time
}
