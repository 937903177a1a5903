// Package events serves event and venue records and their live price.
package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
	"ms-eventhub/internal/pricing"
	"ms-eventhub/internal/utils"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrVenueNotFound = errors.New("venue not found")
	ErrForbidden     = errors.New("not the event organizer")
	ErrInvalidPromo  = errors.New("usage limit below recorded usage")
)

type Store interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error)
	CreateEvent(ctx context.Context, event *models.Event) error
	UpdatePromo(ctx context.Context, eventID, code string, pct float64, limit int) (bool, error)
	GetVenue(ctx context.Context, id string) (*models.Venue, error)
	CreateVenue(ctx context.Context, venue *models.Venue) error
}

// SoldCounter sums ticket quantities per event.
type SoldCounter interface {
	SumQuantity(ctx context.Context, eventID string) (int, error)
}

type Service struct {
	store  Store
	sold   SoldCounter
	logger *logger.Logger
	now    func() time.Time
}

func NewService(store Store, sold SoldCounter, log *logger.Logger) *Service {
	return &Service{store: store, sold: sold, logger: log, now: time.Now}
}

// Details is an event with its price computed for the current moment.
type Details struct {
	Event       *models.Event `json:"event"`
	TicketsSold int           `json:"ticketsSold"`
	pricing.Quote
}

type VenueInput struct {
	Name     string `json:"name" validate:"required"`
	Address  string `json:"address"`
	Capacity int    `json:"capacity" validate:"min=1"`
}

type EventInput struct {
	Title              string    `json:"title" validate:"required"`
	Description        string    `json:"description"`
	Artist             string    `json:"artist"`
	Category           string    `json:"category"`
	Date               time.Time `json:"date" validate:"required"`
	VenueID            string    `json:"venueId" validate:"required"`
	Price              float64   `json:"price" validate:"gte=0"`
	PromoCode          string    `json:"promoCode"`
	DiscountPercentage float64   `json:"discountPercentage" validate:"gte=0,lte=100"`
	UsageLimit         int       `json:"usageLimit" validate:"gte=0"`
}

type PromoInput struct {
	PromoCode          string  `json:"promoCode"`
	DiscountPercentage float64 `json:"discountPercentage" validate:"gte=0,lte=100"`
	UsageLimit         int     `json:"usageLimit" validate:"gte=0"`
}

func (s *Service) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.store.GetEvent(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return event, nil
}

func (s *Service) TicketsSold(ctx context.Context, eventID string) (int, error) {
	n, err := s.sold.SumQuantity(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("sum tickets for %s: %w", eventID, err)
	}
	return n, nil
}

// Price computes the dynamic unit price of event given sold seats.
func (s *Service) Price(event *models.Event, sold int) pricing.Quote {
	return pricing.Compute(pricing.Input{
		BasePrice:   event.Price,
		Capacity:    event.Capacity(),
		TicketsSold: sold,
		EventDate:   event.EventDate,
		Now:         s.now(),
	})
}

func (s *Service) Details(ctx context.Context, id string) (*Details, error) {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	sold, err := s.TicketsSold(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Details{Event: event, TicketsSold: sold, Quote: s.Price(event, sold)}, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]models.Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListEvents(ctx, limit, offset)
}

func (s *Service) CreateVenue(ctx context.Context, in VenueInput) (*models.Venue, error) {
	if err := utils.Validate(in); err != nil {
		return nil, err
	}
	venue := &models.Venue{
		ID:        utils.NewID(),
		Name:      in.Name,
		Address:   in.Address,
		Capacity:  in.Capacity,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateVenue(ctx, venue); err != nil {
		return nil, fmt.Errorf("create venue: %w", err)
	}
	s.logger.LogDatabase("INSERT", "venues", venue.ID)
	return venue, nil
}

func (s *Service) CreateEvent(ctx context.Context, organizerID string, in EventInput) (*models.Event, error) {
	if err := utils.Validate(in); err != nil {
		return nil, err
	}
	venue, err := s.store.GetVenue(ctx, in.VenueID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVenueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get venue: %w", err)
	}

	now := s.now().UTC()
	event := &models.Event{
		ID:                 utils.NewID(),
		Title:              in.Title,
		Description:        in.Description,
		Artist:             in.Artist,
		Category:           in.Category,
		EventDate:          in.Date,
		Price:              in.Price,
		VenueID:            venue.ID,
		OrganizerID:        organizerID,
		PromoCode:          strings.TrimSpace(in.PromoCode),
		DiscountPercentage: in.DiscountPercentage,
		UsageLimit:         in.UsageLimit,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	event.Venue = venue
	s.logger.LogDatabase("INSERT", "events", event.ID)
	return event, nil
}

// UpdatePromo lets the organizer replace the event's promo settings.
func (s *Service) UpdatePromo(ctx context.Context, organizerID, eventID string, in PromoInput) (*models.Event, error) {
	if err := utils.Validate(in); err != nil {
		return nil, err
	}
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		return nil, ErrForbidden
	}

	ok, err := s.store.UpdatePromo(ctx, eventID, strings.TrimSpace(in.PromoCode), in.DiscountPercentage, in.UsageLimit)
	if err != nil {
		return nil, fmt.Errorf("update promo: %w", err)
	}
	if !ok {
		return nil, ErrInvalidPromo
	}
	s.logger.LogDatabase("UPDATE", "events", fmt.Sprintf("promo settings for %s", eventID))
	return s.GetEvent(ctx, eventID)
}
