// Package checkout turns a priced purchase intent into a hosted payment
// session whose metadata alone is enough to rebuild the order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ms-eventhub/internal/discount"
	"ms-eventhub/internal/models"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrInvalidMetadata = errors.New("checkout session metadata is incomplete")
)

// Provider stripe sessions must stay open at least this long.
const MinSessionTTL = 30 * time.Minute

// Metadata keys. Values are strings on the wire.
const (
	KeyEventID            = "eventId"
	KeyUserID             = "userId"
	KeyQuantity           = "quantity"
	KeyDiscountApplied    = "discountApplied"
	KeyDiscountType       = "discountType"
	KeyDiscountPercentage = "discountPercentage"
	KeyPromoCode          = "promoCode"
	KeyPromoSource        = "promoSource"
	KeyGroupDiscountPct   = "groupDiscountPct"
	KeyPromoDiscountPct   = "promoDiscountPct"
	KeyBasePrice          = "basePrice"
	KeyUnitPrice          = "unitPrice"
	KeyHoldID             = "holdId"
)

// Metadata is the order carried by the session.
type Metadata struct {
	EventID            string
	UserID             string
	Quantity           int
	DiscountType       string
	DiscountPercentage float64
	PromoCode          string
	PromoSource        string
	GroupDiscountPct   float64
	PromoDiscountPct   float64
	BasePrice          float64
	UnitPrice          float64
	HoldID             string
}

func (m Metadata) DiscountApplied() bool {
	return m.DiscountType != "" && m.DiscountType != discount.TypeNone
}

func (m Metadata) Map() map[string]string {
	return map[string]string{
		KeyEventID:            m.EventID,
		KeyUserID:             m.UserID,
		KeyQuantity:           strconv.Itoa(m.Quantity),
		KeyDiscountApplied:    strconv.FormatBool(m.DiscountApplied()),
		KeyDiscountType:       m.DiscountType,
		KeyDiscountPercentage: formatFloat(m.DiscountPercentage),
		KeyPromoCode:          m.PromoCode,
		KeyPromoSource:        m.PromoSource,
		KeyGroupDiscountPct:   formatFloat(m.GroupDiscountPct),
		KeyPromoDiscountPct:   formatFloat(m.PromoDiscountPct),
		KeyBasePrice:          formatFloat(m.BasePrice),
		KeyUnitPrice:          formatFloat(m.UnitPrice),
		KeyHoldID:             m.HoldID,
	}
}

// ParseMetadata rebuilds the order. An absent quantity reads as 1; eventId and
// userId are required.
func ParseMetadata(raw map[string]string) (Metadata, error) {
	m := Metadata{
		EventID:      raw[KeyEventID],
		UserID:       raw[KeyUserID],
		Quantity:     1,
		DiscountType: raw[KeyDiscountType],
		PromoCode:    raw[KeyPromoCode],
		PromoSource:  raw[KeyPromoSource],
		HoldID:       raw[KeyHoldID],
	}
	if m.EventID == "" || m.UserID == "" {
		return Metadata{}, ErrInvalidMetadata
	}
	if m.DiscountType == "" {
		m.DiscountType = discount.TypeNone
	}

	if q := raw[KeyQuantity]; q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			return Metadata{}, fmt.Errorf("%w: quantity %q", ErrInvalidMetadata, q)
		}
		m.Quantity = n
	}

	var err error
	floats := []struct {
		key string
		dst *float64
	}{
		{KeyDiscountPercentage, &m.DiscountPercentage},
		{KeyGroupDiscountPct, &m.GroupDiscountPct},
		{KeyPromoDiscountPct, &m.PromoDiscountPct},
		{KeyBasePrice, &m.BasePrice},
		{KeyUnitPrice, &m.UnitPrice},
	}
	for _, f := range floats {
		if *f.dst, err = parseFloat(raw[f.key]); err != nil {
			return Metadata{}, fmt.Errorf("%w: %s", ErrInvalidMetadata, f.key)
		}
	}
	return m, nil
}

// Session is the provider-neutral view of a hosted checkout session.
type Session struct {
	ID            string
	URL           string
	Paid          bool
	Status        string
	AmountTotal   int64 // minor units
	Currency      string
	CustomerEmail string
	Metadata      map[string]string
	ExpiresAt     time.Time
}

type LineItem struct {
	Name        string
	Description string
	UnitAmount  int64 // minor units
	Quantity    int
}

type SessionRequest struct {
	LineItem      LineItem
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
	ExpiresAt     time.Time
}

// Provider is the hosted payment service.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ExpireSession(ctx context.Context, id string) error
}

type Options struct {
	Currency      string
	ClientBaseURL string
	SessionTTL    time.Duration
}

// Adapter builds session requests with fixed client redirect routes.
type Adapter struct {
	provider Provider
	opts     Options
	now      func() time.Time
}

func NewAdapter(p Provider, opts Options) *Adapter {
	if opts.SessionTTL < MinSessionTTL {
		opts.SessionTTL = MinSessionTTL
	}
	if opts.Currency == "" {
		opts.Currency = "npr"
	}
	return &Adapter{provider: p, opts: opts, now: time.Now}
}

func (a *Adapter) SessionTTL() time.Duration { return a.opts.SessionTTL }

func (a *Adapter) SuccessURL() string {
	return a.opts.ClientBaseURL + "/event-payment-success?session_id={CHECKOUT_SESSION_ID}"
}

func (a *Adapter) CancelURL() string {
	return a.opts.ClientBaseURL + "/event-payment-failure"
}

// BuildRequest renders the line item and metadata for one purchase.
func (a *Adapter) BuildRequest(event *models.Event, email string, d discount.Result, meta Metadata) SessionRequest {
	plural := ""
	if d.Quantity > 1 {
		plural = "s"
	}
	desc := fmt.Sprintf("%d ticket%s for %s", d.Quantity, plural, event.Title)
	if d.Description != "" {
		desc += "\n" + d.Description
	}

	unitAmount, qty := d.ChargeLine()
	return SessionRequest{
		LineItem: LineItem{
			Name:        "Event Ticket: " + event.Title,
			Description: desc,
			UnitAmount:  unitAmount,
			Quantity:    qty,
		},
		Currency:      a.opts.Currency,
		CustomerEmail: email,
		SuccessURL:    a.SuccessURL(),
		CancelURL:     a.CancelURL(),
		Metadata:      meta.Map(),
		ExpiresAt:     a.now().Add(a.opts.SessionTTL),
	}
}

func (a *Adapter) Create(ctx context.Context, req SessionRequest) (*Session, error) {
	return a.provider.CreateSession(ctx, req)
}

func (a *Adapter) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	return a.provider.GetSession(ctx, id)
}

func (a *Adapter) Expire(ctx context.Context, id string) error {
	return a.provider.ExpireSession(ctx, id)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
