package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Venue struct {
	bun.BaseModel `bun:"table:venues"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Address   string    `bun:"address" json:"address"`
	Capacity  int       `bun:"capacity,notnull" json:"capacity"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// Event carries its single optional promo code. UsageLimit 0 means unlimited.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID                 string    `bun:"id,pk" json:"id"`
	Title              string    `bun:"title,notnull" json:"title"`
	Description        string    `bun:"description" json:"description"`
	Artist             string    `bun:"artist" json:"artist,omitempty"`
	Category           string    `bun:"category" json:"category,omitempty"`
	EventDate          time.Time `bun:"event_date,notnull" json:"date"`
	Price              float64   `bun:"price,notnull" json:"price"`
	VenueID            string    `bun:"venue_id,notnull" json:"venueId"`
	Venue              *Venue    `bun:"rel:belongs-to,join:venue_id=id" json:"venue,omitempty"`
	OrganizerID        string    `bun:"organizer_id" json:"organizerId"`
	PromoCode          string    `bun:"promo_code" json:"promoCode,omitempty"`
	DiscountPercentage float64   `bun:"discount_percentage" json:"discountPercentage"`
	UsageLimit         int       `bun:"usage_limit" json:"usageLimit"`
	UsageCount         int       `bun:"usage_count" json:"usageCount"`
	CreatedAt          time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt          time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
}

// Capacity is the venue capacity, or 0 when the venue was not loaded.
func (e *Event) Capacity() int {
	if e.Venue == nil {
		return 0
	}
	return e.Venue.Capacity
}
