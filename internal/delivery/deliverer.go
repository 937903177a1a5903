// Package delivery renders ticket artifacts and mails them to buyers.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
	"ms-eventhub/internal/notification"
)

// ErrNoRecipient is permanent: retrying cannot help.
var ErrNoRecipient = errors.New("buyer has no email address")

// StatusStore records delivery attempts on the ticket row.
type StatusStore interface {
	MarkDelivery(ctx context.Context, ticketID, status, errMsg string) error
}

// Notifier tells the buyer when their tickets could not be mailed.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body, kind string)
}

type Deliverer struct {
	bundles   BundleLoader
	artifacts *Artifacts
	mailer    Mailer
	status    StatusStore
	notifier  Notifier
	logger    *logger.Logger
}

type Option func(*Deliverer)

func WithNotifier(n Notifier) Option { return func(d *Deliverer) { d.notifier = n } }

func NewDeliverer(bundles BundleLoader, artifacts *Artifacts, mailer Mailer, status StatusStore, log *logger.Logger, opts ...Option) *Deliverer {
	d := &Deliverer{bundles: bundles, artifacts: artifacts, mailer: mailer, status: status, logger: log}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Deliver renders and mails one ticket. Tickets already sent are skipped.
func (d *Deliverer) Deliver(ctx context.Context, ticketID string) error {
	b, err := d.bundles.GetBundle(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	if b.Ticket.DeliveryStatus == models.DeliverySent {
		d.logger.LogDelivery(ticketID, "already delivered, skipping")
		return nil
	}
	if b.User == nil || b.User.Email == "" {
		d.fail(ctx, ticketID, ErrNoRecipient)
		return ErrNoRecipient
	}

	doc, qrs, err := d.artifacts.RenderAll(ctx, b)
	if err != nil {
		d.fail(ctx, ticketID, err)
		return err
	}

	mail, err := TicketEmail(b, doc, qrs)
	if err != nil {
		d.fail(ctx, ticketID, err)
		return err
	}
	if err := d.mailer.Send(ctx, mail); err != nil {
		d.fail(ctx, ticketID, err)
		return err
	}

	if err := d.status.MarkDelivery(ctx, ticketID, models.DeliverySent, ""); err != nil {
		d.logger.Error("DELIVERY", fmt.Sprintf("Ticket %s mailed but status update failed: %v", ticketID, err))
	}
	d.logger.LogDelivery(ticketID, "ticket emailed to "+b.User.Email)
	return nil
}

func (d *Deliverer) fail(ctx context.Context, ticketID string, cause error) {
	d.logger.Warn("DELIVERY", fmt.Sprintf("Delivery of ticket %s failed: %v", ticketID, cause))
	if err := d.status.MarkDelivery(ctx, ticketID, models.DeliveryFailed, cause.Error()); err != nil {
		d.logger.Error("DELIVERY", fmt.Sprintf("Failed to record delivery failure for %s: %v", ticketID, err))
	}
}

// GiveUp leaves an in-app notice so the buyer knows to fetch the tickets themselves.
func (d *Deliverer) GiveUp(ctx context.Context, ticketID string, cause error) {
	if d.notifier == nil {
		return
	}
	b, err := d.bundles.GetBundle(ctx, ticketID)
	if err != nil {
		d.logger.Error("DELIVERY", fmt.Sprintf("Cannot notify buyer of ticket %s: %v", ticketID, err))
		return
	}
	title := "your event"
	if b.Event != nil {
		title = fmt.Sprintf("%q", b.Event.Title)
	}
	d.notifier.Notify(ctx, b.Ticket.UserID, "We couldn't email your tickets",
		fmt.Sprintf("Your tickets for %s are confirmed but the email failed (%v). Download them from My Tickets.", title, cause),
		notification.TypeDeliveryFailed)
}
