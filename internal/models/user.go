package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string    `bun:"id,pk" json:"id"`
	Email     string    `bun:"email,notnull" json:"email"`
	FullName  string    `bun:"full_name" json:"fullName"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// UserPurchase is the denormalised purchased-tickets index of a user.
// tickets.user_id stays authoritative.
type UserPurchase struct {
	bun.BaseModel `bun:"table:user_purchases"`

	UserID    string    `bun:"user_id,pk" json:"userId"`
	TicketID  string    `bun:"ticket_id,pk" json:"ticketId"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

type UserFavorite struct {
	bun.BaseModel `bun:"table:user_favorites"`

	UserID    string    `bun:"user_id,pk" json:"userId"`
	EventID   string    `bun:"event_id,pk" json:"eventId"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

type Notification struct {
	bun.BaseModel `bun:"table:notifications"`

	ID        string    `bun:"id,pk" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"userId"`
	Title     string    `bun:"title,notnull" json:"title"`
	Body      string    `bun:"body" json:"body"`
	Type      string    `bun:"type,notnull" json:"type"`
	Read      bool      `bun:"read,notnull,default:false" json:"read"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}
