// Package promo owns the usage-limited promo code counter of each event.
package promo

import (
	"context"
	"fmt"

	"ms-eventhub/internal/discount"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
)

const (
	MsgApplied      = "Promo code applied successfully"
	MsgLimitReached = "Promo code has reached its usage limit"
	MsgInvalid      = "Invalid promo code"
)

// Redeemer performs the atomic check-and-increment on the event row.
type Redeemer interface {
	Redeem(ctx context.Context, eventID, code string) (float64, bool, error)
	Refund(ctx context.Context, eventID string) error
}

// ClaimStore bridges a successful validation to the purchase that follows it.
type ClaimStore interface {
	Put(ctx context.Context, eventID, userID, code string) (bool, error)
	Has(ctx context.Context, eventID, userID, code string) (bool, error)
	Take(ctx context.Context, eventID, userID, code string) (bool, error)
}

// EventLookup loads an event with its current promo fields.
type EventLookup interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

type Validation struct {
	Valid              bool    `json:"valid"`
	DiscountPercentage float64 `json:"discountPercentage"`
	Message            string  `json:"message"`
}

// Redemption is the purchase-time outcome. Source tells whether a new slot was
// consumed ("redeemed") or a validation claim was reused ("claim").
type Redemption struct {
	Applied    bool
	Percentage float64
	Source     string
}

type Ledger struct {
	events EventLookup
	store  Redeemer
	claims ClaimStore
	policy discount.Policy
	logger *logger.Logger
}

// NewLedger builds a ledger. claims may be nil, in which case validation and
// purchase each consume their own slot.
func NewLedger(events EventLookup, store Redeemer, claims ClaimStore, policy discount.Policy, log *logger.Logger) *Ledger {
	return &Ledger{events: events, store: store, claims: claims, policy: policy, logger: log}
}

// Validate checks a code and, on success, consumes one slot and records a claim
// for the user. A user with a live claim for the same code is not charged again.
func (l *Ledger) Validate(ctx context.Context, eventID, userID, code string) (Validation, error) {
	event, err := l.events.GetEvent(ctx, eventID)
	if err != nil {
		return Validation{}, err
	}

	if !discount.CodeMatches(event.PromoCode, code) {
		return Validation{Valid: false, Message: MsgInvalid}, nil
	}
	pct := l.policy.PromoPct(event.DiscountPercentage)

	if l.claims != nil && userID != "" {
		has, err := l.claims.Has(ctx, eventID, userID, code)
		if err != nil {
			l.logger.Warn("PROMO", fmt.Sprintf("Claim lookup failed for event %s: %v", eventID, err))
		} else if has {
			return Validation{Valid: true, DiscountPercentage: pct, Message: MsgApplied}, nil
		}
	}

	stored, ok, err := l.store.Redeem(ctx, eventID, code)
	if err != nil {
		return Validation{}, err
	}
	if !ok {
		return Validation{Valid: false, Message: MsgLimitReached}, nil
	}
	pct = l.policy.PromoPct(stored)

	if l.claims != nil && userID != "" {
		if _, err := l.claims.Put(ctx, eventID, userID, code); err != nil {
			l.logger.Warn("PROMO", fmt.Sprintf("Failed to record claim for event %s user %s: %v", eventID, userID, err))
		}
	}

	l.logger.Info("PROMO", fmt.Sprintf("Promo validated for event %s by user %s", eventID, userID))
	return Validation{Valid: true, DiscountPercentage: pct, Message: MsgApplied}, nil
}

// Preview reports whether code would apply without consuming anything.
func (l *Ledger) Preview(event *models.Event, code string) Validation {
	if !discount.CodeMatches(event.PromoCode, code) {
		return Validation{Valid: false, Message: MsgInvalid}
	}
	if !discount.UnderLimit(event.UsageCount, event.UsageLimit) {
		return Validation{Valid: false, Message: MsgLimitReached}
	}
	return Validation{Valid: true, DiscountPercentage: l.policy.PromoPct(event.DiscountPercentage), Message: MsgApplied}
}

// RedeemForPurchase applies code to a purchase. It reuses a validation claim
// when one exists, otherwise performs its own atomic redemption. A code that
// does not match or has no slot left yields Applied=false and no error.
func (l *Ledger) RedeemForPurchase(ctx context.Context, event *models.Event, userID, code string) (Redemption, error) {
	if !discount.CodeMatches(event.PromoCode, code) {
		return Redemption{}, nil
	}
	pct := l.policy.PromoPct(event.DiscountPercentage)

	if l.claims != nil && userID != "" {
		took, err := l.claims.Take(ctx, event.ID, userID, code)
		if err != nil {
			l.logger.Warn("PROMO", fmt.Sprintf("Claim take failed for event %s: %v", event.ID, err))
		} else if took {
			return Redemption{Applied: true, Percentage: pct, Source: "claim"}, nil
		}
	}

	stored, ok, err := l.store.Redeem(ctx, event.ID, code)
	if err != nil {
		return Redemption{}, err
	}
	if !ok {
		l.logger.Info("PROMO", fmt.Sprintf("Promo exhausted for event %s", event.ID))
		return Redemption{}, nil
	}
	return Redemption{Applied: true, Percentage: l.policy.PromoPct(stored), Source: "redeemed"}, nil
}

// Release undoes a redemption whose checkout session was never created.
// A reused claim is put back, a fresh redemption is refunded.
func (l *Ledger) Release(ctx context.Context, eventID, userID, code string, r Redemption) {
	if !r.Applied {
		return
	}
	var err error
	switch {
	case r.Source == "claim" && l.claims != nil:
		_, err = l.claims.Put(ctx, eventID, userID, code)
	default:
		err = l.store.Refund(ctx, eventID)
	}
	if err != nil {
		l.logger.Error("PROMO", fmt.Sprintf("Failed to release promo for event %s: %v", eventID, err))
	}
}
