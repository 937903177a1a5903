// Package order runs the purchase flow: price, discount, seat hold and hosted
// checkout on the way in; verification and ticket issuance on the way back.
package order

import (
	"context"
	"errors"
	"fmt"

	"ms-eventhub/internal/checkout"
	"ms-eventhub/internal/discount"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
	"ms-eventhub/internal/notification"
	orderredis "ms-eventhub/internal/order/redis"
	"ms-eventhub/internal/pricing"
	"ms-eventhub/internal/promo"
	"ms-eventhub/internal/tickets"
)

var (
	ErrCapacityExhausted   = errors.New("all tickets sold")
	ErrPaymentNotConfirmed = errors.New("payment not completed")
	ErrSessionNotFound     = errors.New("checkout session not found")
	ErrForbidden           = errors.New("checkout session belongs to another user")
	ErrAlreadyPaid         = errors.New("checkout session is already paid")
)

// EventCatalog reads events and their live price.
type EventCatalog interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	TicketsSold(ctx context.Context, eventID string) (int, error)
	Price(event *models.Event, sold int) pricing.Quote
}

type PromoLedger interface {
	Preview(event *models.Event, code string) promo.Validation
	RedeemForPurchase(ctx context.Context, event *models.Event, userID, code string) (promo.Redemption, error)
	Release(ctx context.Context, eventID, userID, code string, r promo.Redemption)
}

// SeatHolds is optional; without it capacity is checked against sales only.
type SeatHolds interface {
	Reserve(ctx context.Context, eventID string, quantity, sold, capacity int) (*orderredis.Hold, error)
	Release(ctx context.Context, eventID, holdID string) (bool, error)
	Held(ctx context.Context, eventID string) (int, error)
}

type Issuer interface {
	Issue(ctx context.Context, req tickets.IssueRequest) (*tickets.IssueResult, error)
	FindBySession(ctx context.Context, sessionID string) (*models.Ticket, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID, title, body, kind string)
}

type Dependencies struct {
	Events        EventCatalog
	Promos        PromoLedger
	Holds         SeatHolds
	Checkout      *checkout.Adapter
	Tickets       Issuer
	Notifier      Notifier
	Policy        discount.Policy
	WebhookSecret string
	Logger        *logger.Logger
}

type Service struct {
	events        EventCatalog
	promos        PromoLedger
	holds         SeatHolds
	checkout      *checkout.Adapter
	tickets       Issuer
	notifier      Notifier
	policy        discount.Policy
	webhookSecret string
	logger        *logger.Logger
}

func NewService(d Dependencies) *Service {
	return &Service{
		events:        d.Events,
		promos:        d.Promos,
		holds:         d.Holds,
		checkout:      d.Checkout,
		tickets:       d.Tickets,
		notifier:      d.Notifier,
		policy:        d.Policy,
		webhookSecret: d.WebhookSecret,
		logger:        d.Logger,
	}
}

type BuyRequest struct {
	EventID   string `json:"eventId" validate:"required"`
	PromoCode string `json:"promoCode" validate:"max=64"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=50"`
}

type Buyer struct {
	UserID string
	Email  string
}

type BuyResult struct {
	SessionID string          `json:"sessionId"`
	URL       string          `json:"url"`
	Discount  discount.Result `json:"discount"`
	PromoUsed bool            `json:"promoApplied"`
}

// QuoteResult previews a purchase without consuming promo usage or seats.
type QuoteResult struct {
	Pricing     pricing.Quote     `json:"pricing"`
	TicketsSold int               `json:"ticketsSold"`
	SeatsLeft   int               `json:"seatsLeft"`
	Discount    discount.Result   `json:"discount"`
	Promo       *promo.Validation `json:"promo,omitempty"`
}

func (s *Service) Quote(ctx context.Context, eventID string, quantity int, code string) (*QuoteResult, error) {
	if quantity < 1 {
		quantity = 1
	}
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	sold, err := s.events.TicketsSold(ctx, eventID)
	if err != nil {
		return nil, err
	}

	q := s.events.Price(event, sold)
	res := &QuoteResult{Pricing: q, TicketsSold: sold, SeatsLeft: s.seatsLeft(ctx, event, sold)}

	var promoPct float64
	if code != "" {
		v := s.promos.Preview(event, code)
		res.Promo = &v
		if v.Valid {
			promoPct = v.DiscountPercentage
		}
	}
	res.Discount = s.policy.Calculate(q.DynamicPrice, quantity, promoPct)
	return res, nil
}

func (s *Service) seatsLeft(ctx context.Context, event *models.Event, sold int) int {
	left := event.Capacity() - sold
	if s.holds != nil {
		held, err := s.holds.Held(ctx, event.ID)
		if err != nil {
			s.logger.Warn("ORDER", fmt.Sprintf("Failed to count holds for %s: %v", event.ID, err))
		}
		left -= held
	}
	if left < 0 {
		return 0
	}
	return left
}

// recheckCapacity returns the current sold count, or ErrCapacityExhausted when
// sales that landed after the first read leave too few seats for every hold.
func (s *Service) recheckCapacity(ctx context.Context, event *models.Event, before, capacity int) (int, error) {
	sold, err := s.events.TicketsSold(ctx, event.ID)
	if err != nil {
		return 0, err
	}
	if sold == before {
		return sold, nil
	}
	held, err := s.holds.Held(ctx, event.ID)
	if err != nil {
		return 0, err
	}
	if sold+held > capacity {
		s.logger.Warn("ORDER", fmt.Sprintf("Sales on %s moved from %d to %d during reservation; rejecting", event.ID, before, sold))
		return 0, ErrCapacityExhausted
	}
	return sold, nil
}

// Buy prices the purchase at this moment, holds the seats, redeems the promo
// code atomically and opens a hosted checkout session carrying the order.
func (s *Service) Buy(ctx context.Context, buyer Buyer, req BuyRequest) (*BuyResult, error) {
	event, err := s.events.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	sold, err := s.events.TicketsSold(ctx, event.ID)
	if err != nil {
		return nil, err
	}

	capacity := event.Capacity()
	if sold >= capacity {
		return nil, ErrCapacityExhausted
	}

	var hold *orderredis.Hold
	if s.holds != nil {
		hold, err = s.holds.Reserve(ctx, event.ID, req.Quantity, sold, capacity)
		if errors.Is(err, orderredis.ErrCapacityExhausted) {
			return nil, ErrCapacityExhausted
		}
		if err != nil {
			return nil, err
		}
	} else if sold+req.Quantity > capacity {
		return nil, ErrCapacityExhausted
	}

	release := func() {
		if hold != nil {
			if _, err := s.holds.Release(ctx, event.ID, hold.ID); err != nil {
				s.logger.Warn("ORDER", fmt.Sprintf("Failed to release hold %s: %v", hold.ID, err))
			}
		}
	}

	// A concurrent issuance can mint and drop its hold between the first
	// read and Reserve; count sales again now that our seats are held.
	if hold != nil {
		if sold, err = s.recheckCapacity(ctx, event, sold, capacity); err != nil {
			release()
			return nil, err
		}
	}

	quote := s.events.Price(event, sold)

	var redemption promo.Redemption
	if req.PromoCode != "" {
		redemption, err = s.promos.RedeemForPurchase(ctx, event, buyer.UserID, req.PromoCode)
		if err != nil {
			release()
			return nil, err
		}
	}

	d := s.policy.Calculate(quote.DynamicPrice, req.Quantity, redemption.Percentage)

	meta := checkout.Metadata{
		EventID:            event.ID,
		UserID:             buyer.UserID,
		Quantity:           req.Quantity,
		DiscountType:       d.DiscountType,
		DiscountPercentage: d.EffectivePct,
		GroupDiscountPct:   d.GroupDiscountPct,
		PromoDiscountPct:   d.PromoDiscountPct,
		BasePrice:          d.BasePrice,
		UnitPrice:          d.FinalUnitPrice,
	}
	if redemption.Applied {
		meta.PromoCode = req.PromoCode
		meta.PromoSource = redemption.Source
	}
	if hold != nil {
		meta.HoldID = hold.ID
	}

	session, err := s.checkout.Create(ctx, s.checkout.BuildRequest(event, buyer.Email, d, meta))
	if err != nil {
		s.promos.Release(ctx, event.ID, buyer.UserID, req.PromoCode, redemption)
		release()
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	s.logger.LogOrder("BUY", session.ID, fmt.Sprintf("event=%s user=%s qty=%d unit=%.2f total=%.2f discount=%s",
		event.ID, buyer.UserID, req.Quantity, d.FinalUnitPrice, d.FinalPrice, d.DiscountType))

	return &BuyResult{SessionID: session.ID, URL: session.URL, Discount: d, PromoUsed: redemption.Applied}, nil
}

type VerifyResult struct {
	Ticket  *models.Ticket `json:"ticket"`
	Created bool           `json:"created"`
}

// VerifyPayment mints the ticket of a paid session. Verifying the same
// session again returns the ticket minted the first time.
func (s *Service) VerifyPayment(ctx context.Context, userID, sessionID string) (*VerifyResult, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	existing, err := s.tickets.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.UserID != userID {
			return nil, ErrForbidden
		}
		return &VerifyResult{Ticket: existing}, nil
	}

	session, meta, err := s.loadSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Paid {
		return nil, ErrPaymentNotConfirmed
	}
	return s.complete(ctx, session, meta)
}

func (s *Service) loadSession(ctx context.Context, userID, sessionID string) (*checkout.Session, checkout.Metadata, error) {
	session, err := s.checkout.Get(ctx, sessionID)
	if errors.Is(err, checkout.ErrSessionNotFound) {
		return nil, checkout.Metadata{}, ErrSessionNotFound
	}
	if err != nil {
		return nil, checkout.Metadata{}, err
	}
	meta, err := checkout.ParseMetadata(session.Metadata)
	if err != nil {
		return nil, checkout.Metadata{}, err
	}
	if userID != "" && meta.UserID != userID {
		return nil, checkout.Metadata{}, ErrForbidden
	}
	return session, meta, nil
}

// complete is shared by verification and the completed-session webhook.
func (s *Service) complete(ctx context.Context, session *checkout.Session, meta checkout.Metadata) (*VerifyResult, error) {
	event, err := s.events.GetEvent(ctx, meta.EventID)
	if err != nil {
		return nil, err
	}

	amount := pricing.FromMinorUnits(session.AmountTotal)
	unit := meta.UnitPrice
	if unit == 0 && meta.Quantity > 0 {
		unit = pricing.Round2(amount / float64(meta.Quantity))
	}

	res, err := s.tickets.Issue(ctx, tickets.IssueRequest{
		SessionID:    session.ID,
		EventID:      meta.EventID,
		UserID:       meta.UserID,
		UserEmail:    session.CustomerEmail,
		Quantity:     meta.Quantity,
		UnitPrice:    unit,
		AmountTotal:  amount,
		DiscountType: meta.DiscountType,
		PromoCode:    meta.PromoCode,
	})
	if err != nil {
		return nil, err
	}

	s.releaseHold(ctx, meta)

	if res.Created {
		s.logger.LogOrder("VERIFY", session.ID, fmt.Sprintf("ticket %s minted with %d code(s)", res.Ticket.ID, len(res.Ticket.Codes)))
		if s.notifier != nil {
			s.notifier.Notify(ctx, meta.UserID,
				"Ticket Purchase Successful!",
				fmt.Sprintf("Payment successful! Your tickets (%d) for %q are now confirmed.", meta.Quantity, event.Title),
				notification.TypePaymentSuccess,
			)
		}
	}
	return &VerifyResult{Ticket: res.Ticket, Created: res.Created}, nil
}

func (s *Service) releaseHold(ctx context.Context, meta checkout.Metadata) {
	if s.holds == nil || meta.HoldID == "" {
		return
	}
	if _, err := s.holds.Release(ctx, meta.EventID, meta.HoldID); err != nil {
		s.logger.Warn("ORDER", fmt.Sprintf("Failed to release hold %s: %v", meta.HoldID, err))
	}
}

type SessionDetails struct {
	SessionID          string  `json:"sessionId"`
	Paid               bool    `json:"paid"`
	Status             string  `json:"status"`
	Quantity           int     `json:"quantity"`
	AmountTotal        int64   `json:"amount_total"`
	DiscountApplied    bool    `json:"discountApplied"`
	DiscountType       string  `json:"discountType"`
	DiscountPercentage float64 `json:"discountPercentage"`
}

func (s *Service) SessionDetails(ctx context.Context, userID, sessionID string) (*SessionDetails, error) {
	session, meta, err := s.loadSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionDetails{
		SessionID:          session.ID,
		Paid:               session.Paid,
		Status:             session.Status,
		Quantity:           meta.Quantity,
		AmountTotal:        session.AmountTotal,
		DiscountApplied:    meta.DiscountApplied(),
		DiscountType:       meta.DiscountType,
		DiscountPercentage: meta.DiscountPercentage,
	}, nil
}

// CancelCheckout expires an open session and frees its seats. Promo usage
// stays consumed.
func (s *Service) CancelCheckout(ctx context.Context, userID, sessionID string) error {
	session, meta, err := s.loadSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if session.Paid {
		return ErrAlreadyPaid
	}
	if session.Status == "open" {
		if err := s.checkout.Expire(ctx, sessionID); err != nil {
			return fmt.Errorf("expire session %s: %w", sessionID, err)
		}
	}
	s.releaseHold(ctx, meta)
	s.logger.LogOrder("CANCEL", sessionID, "checkout canceled by buyer")
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, "Checkout canceled", "Your checkout was canceled and the seats were released.", notification.TypeCheckoutCanceled)
	}
	return nil
}
