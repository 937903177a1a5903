package analytics

import (
	"context"
	"errors"

	"ms-eventhub/internal/models"
	"ms-eventhub/internal/pricing"
)

var ErrForbidden = errors.New("only the organizer can view event analytics")

// EventLookup loads an event with its venue.
type EventLookup interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

// Service handles analytics operations
type Service struct {
	db     *DB
	events EventLookup
}

// NewService creates a new analytics service
func NewService(db *DB, events EventLookup) *Service {
	return &Service{db: db, events: events}
}

// EventAnalytics represents aggregated sales data for an event
type EventAnalytics struct {
	EventID          string              `json:"event_id"`
	Title            string              `json:"title"`
	Capacity         int                 `json:"capacity"`
	TotalOrders      int                 `json:"total_orders"`
	TotalTicketsSold int                 `json:"total_tickets_sold"`
	TotalRevenue     float64             `json:"total_revenue"`
	SeatsLeft        int                 `json:"seats_left"`
	PercentSold      float64             `json:"percent_sold"`
	Promo            *PromoUsage         `json:"promo,omitempty"`
	DailySales       []DailySalesMetrics `json:"daily_sales"`
	DiscountUsage    []DiscountUsage     `json:"discount_usage"`
}

// PromoUsage reports how much of the event's promo code has been consumed.
type PromoUsage struct {
	Code       string  `json:"code"`
	Percentage float64 `json:"percentage"`
	UsageCount int     `json:"usage_count"`
	UsageLimit int     `json:"usage_limit"`
}

// DailySalesMetrics contains metrics for a single day
type DailySalesMetrics struct {
	Date        string  `bun:"sales_date" json:"date"`
	Revenue     float64 `bun:"daily_revenue" json:"revenue"`
	TicketsSold int     `bun:"tickets_sold_on_date" json:"tickets_sold"`
}

// DiscountUsage tracks purchases per discount type
type DiscountUsage struct {
	DiscountType string  `bun:"discount_type" json:"discount_type"`
	Orders       int     `bun:"orders" json:"orders"`
	Tickets      int     `bun:"tickets" json:"tickets"`
	Revenue      float64 `bun:"revenue" json:"revenue"`
}

// GetEventAnalytics returns sales analytics for an event owned by userID.
func (s *Service) GetEventAnalytics(ctx context.Context, eventID, userID string) (*EventAnalytics, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID == "" || event.OrganizerID != userID {
		return nil, ErrForbidden
	}

	totals, err := s.db.Totals(ctx, eventID)
	if err != nil {
		return nil, err
	}
	daily, err := s.db.DailySales(ctx, eventID)
	if err != nil {
		return nil, err
	}
	usage, err := s.db.DiscountUsage(ctx, eventID)
	if err != nil {
		return nil, err
	}

	out := &EventAnalytics{
		EventID:          event.ID,
		Title:            event.Title,
		Capacity:         event.Capacity(),
		TotalOrders:      totals.Orders,
		TotalTicketsSold: totals.Tickets,
		TotalRevenue:     pricing.Round2(totals.Revenue),
		DailySales:       daily,
		DiscountUsage:    usage,
	}
	if out.Capacity > 0 {
		out.SeatsLeft = max(out.Capacity-totals.Tickets, 0)
		out.PercentSold = pricing.Round2(float64(totals.Tickets) / float64(out.Capacity) * 100)
	}
	if event.PromoCode != "" {
		out.Promo = &PromoUsage{
			Code:       event.PromoCode,
			Percentage: event.DiscountPercentage,
			UsageCount: event.UsageCount,
			UsageLimit: event.UsageLimit,
		}
	}
	return out, nil
}
