package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// Ticket is one purchase: Quantity seats, one code each, keyed by the checkout session.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID               string     `bun:"id,pk" json:"id"`
	UserID           string     `bun:"user_id,notnull" json:"userId"`
	EventID          string     `bun:"event_id,notnull" json:"eventId"`
	Event            *Event     `bun:"rel:belongs-to,join:event_id=id" json:"event,omitempty"`
	SessionID        string     `bun:"session_id,notnull,unique" json:"sessionId"`
	Quantity         int        `bun:"quantity,notnull" json:"quantity"`
	UnitPrice        float64    `bun:"unit_price,notnull" json:"unitPrice"`
	AmountTotal      float64    `bun:"amount_total,notnull" json:"amountTotal"`
	DiscountType     string     `bun:"discount_type" json:"discountType"`
	PromoCode        string     `bun:"promo_code" json:"promoCode,omitempty"`
	Codes            []string   `bun:"codes,type:jsonb" json:"ticketCodes"`
	PurchaseDate     time.Time  `bun:"purchase_date,notnull" json:"purchaseDate"`
	DeliveryStatus   string     `bun:"delivery_status,notnull,default:'pending'" json:"deliveryStatus"`
	DeliveryAttempts int        `bun:"delivery_attempts,notnull,default:0" json:"deliveryAttempts"`
	DeliveryError    string     `bun:"delivery_error" json:"deliveryError,omitempty"`
	DeliveredAt      *time.Time `bun:"delivered_at" json:"deliveredAt,omitempty"`
}

// TicketCode backs global code uniqueness with its primary key.
type TicketCode struct {
	bun.BaseModel `bun:"table:ticket_codes"`

	Code     string `bun:"code,pk" json:"code"`
	TicketID string `bun:"ticket_id,notnull" json:"ticketId"`
	Seat     int    `bun:"seat,notnull" json:"seat"`
}

// TicketBundle is everything delivery needs to render and send a ticket.
type TicketBundle struct {
	Ticket *Ticket
	Event  *Event
	Venue  *Venue
	User   *User
}
