// Package tickets mints tickets for confirmed payments and serves them to their owners.
package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
	"ms-eventhub/internal/utils"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrForbidden      = errors.New("ticket belongs to another user")
	ErrInvalidRequest = errors.New("invalid issue request")
)

const maxMintAttempts = 3

type Store interface {
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	GetBySession(ctx context.Context, sessionID string) (*models.Ticket, error)
	ListByUser(ctx context.Context, userID string) ([]models.Ticket, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.Ticket, error)
	CreateIssued(ctx context.Context, ticket *models.Ticket) (bool, error)
	Delete(ctx context.Context, id string) error
	UpsertUser(ctx context.Context, user *models.User) error
}

// Dispatcher schedules delivery of a minted ticket.
type Dispatcher interface {
	Dispatch(ctx context.Context, ticketID string) error
}

// IssuedPublisher announces minted tickets to other services.
type IssuedPublisher interface {
	PublishTicketIssued(ctx context.Context, ev models.TicketIssuedEvent) error
}

// Artifacts serves and removes a ticket's rendered files.
type Artifacts interface {
	QRCode(ctx context.Context, ticket *models.Ticket, code string) ([]byte, error)
	PDF(ctx context.Context, ticketID string) ([]byte, error)
	Remove(ctx context.Context, ticket *models.Ticket) error
}

// EventOwner resolves an event's organizer.
type EventOwner interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

type CodeGenerator func(n int) ([]string, error)

type IssueRequest struct {
	SessionID    string
	EventID      string
	UserID       string
	UserEmail    string
	Quantity     int
	UnitPrice    float64
	AmountTotal  float64
	DiscountType string
	PromoCode    string
}

// IssueResult tells a fresh mint apart from a replayed verification.
type IssueResult struct {
	Ticket  *models.Ticket
	Created bool
}

type Service struct {
	store      Store
	dispatcher Dispatcher
	publisher  IssuedPublisher
	artifacts  Artifacts
	events     EventOwner
	codes      CodeGenerator
	logger     *logger.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithPublisher(p IssuedPublisher) Option { return func(s *Service) { s.publisher = p } }
func WithArtifacts(a Artifacts) Option       { return func(s *Service) { s.artifacts = a } }
func WithEventOwner(e EventOwner) Option     { return func(s *Service) { s.events = e } }
func WithCodeGenerator(g CodeGenerator) Option {
	return func(s *Service) { s.codes = g }
}

func NewService(store Store, dispatcher Dispatcher, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		dispatcher: dispatcher,
		codes:      utils.GenerateTicketCodes,
		logger:     log,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Issue mints the ticket for a paid session exactly once. Replays return the
// ticket minted first. Delivery is scheduled but never fails the call.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if req.SessionID == "" || req.EventID == "" || req.UserID == "" || req.Quantity < 1 {
		return nil, ErrInvalidRequest
	}

	existing, err := s.lookupSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.LogOrder("VERIFY", req.SessionID, fmt.Sprintf("ticket %s already issued", existing.ID))
		return &IssueResult{Ticket: existing}, nil
	}

	if err := s.store.UpsertUser(ctx, &models.User{ID: req.UserID, Email: req.UserEmail, CreatedAt: s.now().UTC()}); err != nil {
		s.logger.Warn("TICKET", fmt.Sprintf("Failed to upsert buyer %s: %v", req.UserID, err))
	}

	var lastErr error
	for attempt := 1; attempt <= maxMintAttempts; attempt++ {
		codes, err := s.codes(req.Quantity)
		if err != nil {
			return nil, fmt.Errorf("generate ticket codes: %w", err)
		}

		ticket := &models.Ticket{
			ID:             utils.NewID(),
			UserID:         req.UserID,
			EventID:        req.EventID,
			SessionID:      req.SessionID,
			Quantity:       req.Quantity,
			UnitPrice:      req.UnitPrice,
			AmountTotal:    req.AmountTotal,
			DiscountType:   req.DiscountType,
			PromoCode:      req.PromoCode,
			Codes:          codes,
			PurchaseDate:   s.now().UTC(),
			DeliveryStatus: models.DeliveryPending,
		}

		created, err := s.store.CreateIssued(ctx, ticket)
		if err == nil && created {
			s.logger.LogOrder("ISSUE", req.SessionID, fmt.Sprintf("ticket %s minted with %d codes", ticket.ID, len(codes)))
			s.afterIssue(ctx, ticket)
			return &IssueResult{Ticket: ticket, Created: true}, nil
		}

		// Either a concurrent verification won the session or a code collided.
		existing, lerr := s.lookupSession(ctx, req.SessionID)
		if lerr != nil {
			return nil, lerr
		}
		if existing != nil {
			return &IssueResult{Ticket: existing}, nil
		}
		lastErr = err
		s.logger.Warn("TICKET", fmt.Sprintf("Mint attempt %d for session %s failed: %v", attempt, req.SessionID, err))
	}
	return nil, fmt.Errorf("mint ticket for session %s: %w", req.SessionID, lastErr)
}

func (s *Service) lookupSession(ctx context.Context, sessionID string) (*models.Ticket, error) {
	t, err := s.store.GetBySession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session %s: %w", sessionID, err)
	}
	return t, nil
}

// FindBySession returns the ticket already minted for a session, if any.
func (s *Service) FindBySession(ctx context.Context, sessionID string) (*models.Ticket, error) {
	return s.lookupSession(ctx, sessionID)
}

func (s *Service) afterIssue(ctx context.Context, ticket *models.Ticket) {
	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, ticket.ID); err != nil {
			s.logger.Error("DELIVERY", fmt.Sprintf("Failed to schedule delivery for ticket %s: %v", ticket.ID, err))
		}
	}
	if s.publisher != nil {
		ev, err := models.NewTicketIssuedEvent(ticket)
		if err == nil {
			err = s.publisher.PublishTicketIssued(ctx, ev)
		}
		if err != nil {
			s.logger.Warn("KAFKA", fmt.Sprintf("Failed to publish ticket issued for %s: %v", ticket.ID, err))
		}
	}
}

// Get returns a ticket owned by userID.
func (s *Service) Get(ctx context.Context, id, userID string) (*models.Ticket, error) {
	t, err := s.store.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}
	if t.UserID != userID {
		return nil, ErrForbidden
	}
	return t, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	return s.store.ListByUser(ctx, userID)
}

// ListForEvent is restricted to the event organizer.
func (s *Service) ListForEvent(ctx context.Context, eventID, userID string) ([]models.Ticket, error) {
	if s.events == nil {
		return nil, ErrForbidden
	}
	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.OrganizerID != userID {
		return nil, ErrForbidden
	}
	return s.store.ListByEvent(ctx, eventID)
}

// Delete removes an owned ticket and its generated files.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	t, err := s.Get(ctx, id, userID)
	if err != nil {
		return err
	}
	if s.artifacts != nil {
		if err := s.artifacts.Remove(ctx, t); err != nil {
			s.logger.Warn("TICKET", fmt.Sprintf("Failed to remove artifacts of %s: %v", id, err))
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTicketNotFound
		}
		return fmt.Errorf("delete ticket %s: %w", id, err)
	}
	s.logger.LogDatabase("DELETE", "tickets", id)
	return nil
}

// QRCode returns the PNG of one code of an owned ticket.
func (s *Service) QRCode(ctx context.Context, id, code, userID string) ([]byte, error) {
	t, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if code == "" && len(t.Codes) > 0 {
		code = t.Codes[0]
	}
	if !hasCode(t, code) {
		return nil, ErrTicketNotFound
	}
	if s.artifacts == nil {
		return nil, errors.New("artifacts unavailable")
	}
	return s.artifacts.QRCode(ctx, t, code)
}

// PDF returns the printable ticket of an owned ticket.
func (s *Service) PDF(ctx context.Context, id, userID string) ([]byte, error) {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return nil, err
	}
	if s.artifacts == nil {
		return nil, errors.New("artifacts unavailable")
	}
	return s.artifacts.PDF(ctx, id)
}

func hasCode(t *models.Ticket, code string) bool {
	for _, c := range t.Codes {
		if c == code {
			return true
		}
	}
	return false
}
