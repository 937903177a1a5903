package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketIssuedEvent is published once per minted ticket.
type TicketIssuedEvent struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Quantity  int       `json:"quantity"`
	IssuedAt  time.Time `json:"issued_at"`
}

// DeliveryRequest asks the delivery worker to render and send a ticket.
type DeliveryRequest struct {
	TicketID string `json:"ticket_id"`
	Attempt  int    `json:"attempt"`
}

// NewTicketIssuedEvent fails when ticketID is not a UUID.
func NewTicketIssuedEvent(t *Ticket) (TicketIssuedEvent, error) {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return TicketIssuedEvent{}, err
	}
	return TicketIssuedEvent{
		TicketID:  id,
		EventID:   t.EventID,
		UserID:    t.UserID,
		SessionID: t.SessionID,
		Quantity:  t.Quantity,
		IssuedAt:  t.PurchaseDate,
	}, nil
}
