package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/utils"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeProvider backs Provider with Stripe hosted checkout.
type StripeProvider struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeProvider(secretKey string, log *logger.Logger) (*StripeProvider, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}
	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeProvider{client: sc, log: log}, nil
}

func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.LineItem.Name),
					Description: stripe.String(req.LineItem.Description),
				},
				UnitAmount: stripe.Int64(req.LineItem.UnitAmount),
			},
			Quantity: stripe.Int64(int64(req.LineItem.Quantity)),
		}},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		p.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session: %v", err))
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	p.log.Info("STRIPE", fmt.Sprintf("Checkout session %s created", s.ID))
	return toSession(s), nil
}

func (p *StripeProvider) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.client.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return toSession(s), nil
}

func (p *StripeProvider) ExpireSession(ctx context.Context, id string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := p.client.CheckoutSessions.Expire(id, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && (stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing) {
		return ErrSessionNotFound
	}
	return fmt.Errorf("stripe: %w", err)
}

func toSession(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		URL:           s.URL,
		Paid:          s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Status:        string(s.Status),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.ExpiresAt > 0 {
		out.ExpiresAt = utils.UnixTimeToTime(s.ExpiresAt).UTC()
	}
	return out
}

// SessionFromStripe converts a session decoded from a webhook payload.
func SessionFromStripe(s *stripe.CheckoutSession) *Session {
	return toSession(s)
}
