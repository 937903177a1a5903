package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-eventhub/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- TICKETS ----------------

func (d *DB) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Relation("Event").
		Where("ticket.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetBySession is the idempotency lookup for payment verification.
func (d *DB) GetBySession(ctx context.Context, sessionID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("session_id = ?", sessionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) ListByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Relation("Event").
		Relation("Event.Venue").
		Where("ticket.user_id = ?", userID).
		Order("ticket.purchase_date DESC").
		Scan(ctx)
	return tickets, err
}

func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("event_id = ?", eventID).
		Order("purchase_date DESC").
		Scan(ctx)
	return tickets, err
}

// SumQuantity returns the seats sold for an event. Backed by idx_tickets_event_id.
func (d *DB) SumQuantity(ctx context.Context, eventID string) (int, error) {
	var total int
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("COALESCE(SUM(quantity), 0)").
		Where("event_id = ?", eventID).
		Scan(ctx, &total)
	return total, err
}

// CreateIssued writes the ticket, its codes and the purchase back-reference in
// one transaction. It returns false, with nothing written, when a ticket for the
// same session already exists.
func (d *DB) CreateIssued(ctx context.Context, ticket *models.Ticket) (bool, error) {
	created := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().
			Model(ticket).
			On("CONFLICT (session_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		codes := make([]models.TicketCode, len(ticket.Codes))
		for i, c := range ticket.Codes {
			codes[i] = models.TicketCode{Code: c, TicketID: ticket.ID, Seat: i + 1}
		}
		if len(codes) > 0 {
			if _, err := tx.NewInsert().Model(&codes).Exec(ctx); err != nil {
				return fmt.Errorf("insert ticket codes: %w", err)
			}
		}

		purchase := &models.UserPurchase{UserID: ticket.UserID, TicketID: ticket.ID, CreatedAt: ticket.PurchaseDate}
		if _, err := tx.NewInsert().Model(purchase).On("CONFLICT (user_id, ticket_id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert user purchase: %w", err)
		}

		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// Delete removes the ticket with its codes and purchase back-reference.
func (d *DB) Delete(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*models.TicketCode)(nil)).Where("ticket_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*models.UserPurchase)(nil)).Where("ticket_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*models.Ticket)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// CodeTicketID resolves a code to its ticket.
func (d *DB) CodeTicketID(ctx context.Context, code string) (string, error) {
	var tc models.TicketCode
	err := d.Bun.NewSelect().Model(&tc).Where("code = ?", code).Limit(1).Scan(ctx)
	return tc.TicketID, err
}

// ---------------- DELIVERY ----------------

// MarkDelivery records one delivery attempt outcome.
func (d *DB) MarkDelivery(ctx context.Context, ticketID, status, errMsg string) error {
	q := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("delivery_status = ?", status).
		Set("delivery_attempts = delivery_attempts + 1").
		Set("delivery_error = ?", errMsg).
		Where("id = ?", ticketID)
	if status == models.DeliverySent {
		q = q.Set("delivered_at = ?", time.Now().UTC())
	}
	_, err := q.Exec(ctx)
	return err
}

// ListStalePending returns tickets never attempted for delivery and issued
// before olderThan, oldest first.
func (d *DB) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("id").
		Where("delivery_status = ?", models.DeliveryPending).
		Where("delivery_attempts = 0").
		Where("purchase_date < ?", olderThan).
		Order("purchase_date ASC").
		Limit(limit).
		Scan(ctx, &ids)
	return ids, err
}

// GetBundle loads ticket, event, venue and buyer for delivery.
func (d *DB) GetBundle(ctx context.Context, ticketID string) (*models.TicketBundle, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Relation("Event").
		Relation("Event.Venue").
		Where("ticket.id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	user, err := d.GetUser(ctx, ticket.UserID)
	if err != nil {
		return nil, fmt.Errorf("load buyer %s: %w", ticket.UserID, err)
	}

	bundle := &models.TicketBundle{Ticket: &ticket, Event: ticket.Event, User: user}
	if ticket.Event != nil {
		bundle.Venue = ticket.Event.Venue
	}
	return bundle, nil
}

// ---------------- USERS ----------------

// UpsertUser keeps the buyer row current; an empty email never overwrites a known one.
func (d *DB) UpsertUser(ctx context.Context, user *models.User) error {
	_, err := d.Bun.NewInsert().
		Model(user).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil || user.Email == "" {
		return err
	}
	_, err = d.Bun.NewUpdate().
		Model((*models.User)(nil)).
		Set("email = ?", user.Email).
		Where("id = ?", user.ID).
		Exec(ctx)
	return err
}

func (d *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().Model(&user).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
