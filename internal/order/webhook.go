package order

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ms-eventhub/internal/checkout"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const maxWebhookBody = 65536

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// HandleStripeWebhook verifies and processes a Stripe checkout webhook.
func (s *Service) HandleStripeWebhook(r *http.Request) error {
	if s.webhookSecret == "" {
		s.logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	s.logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event: %s", event.Type))
	return s.handleEvent(r.Context(), event)
}

func (s *Service) handleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		session, meta, werr := s.decodeSession(event)
		if werr != nil {
			return werr
		}
		if !session.Paid {
			s.logger.Info("WEBHOOK", fmt.Sprintf("Session %s completed with payment pending", session.ID))
			return nil
		}
		if _, err := s.complete(ctx, session, meta); err != nil {
			s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to issue ticket for session %s: %v", session.ID, err))
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("Failed to issue ticket for session %s: %v", session.ID, err),
				OriginalErr:   err,
			}
		}
		s.logger.Info("WEBHOOK", fmt.Sprintf("Successfully processed payment for session %s", session.ID))

	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		session, meta, werr := s.decodeSession(event)
		if werr != nil {
			return werr
		}
		s.releaseHold(ctx, meta)
		s.logger.LogOrder("EXPIRE", session.ID, "seats released")

	default:
		s.logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring webhook event %s", event.Type))
	}
	return nil
}

func (s *Service) decodeSession(event stripe.Event) (*checkout.Session, checkout.Metadata, *WebhookError) {
	var cs stripe.CheckoutSession
	if event.Data == nil {
		return nil, checkout.Metadata{}, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: "Webhook event carries no data",
		}
	}
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal checkout session: %v", err))
		return nil, checkout.Metadata{}, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("Failed to unmarshal checkout session: %v", err),
			OriginalErr:   err,
		}
	}

	session := checkout.SessionFromStripe(&cs)
	meta, err := checkout.ParseMetadata(session.Metadata)
	if err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Session %s has invalid metadata: %v", session.ID, err))
		return nil, checkout.Metadata{}, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid checkout session data",
			InternalError: fmt.Sprintf("Session %s has invalid metadata: %v", session.ID, err),
			OriginalErr:   err,
		}
	}
	return session, meta, nil
}
