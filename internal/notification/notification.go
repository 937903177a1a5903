// Package notification stores in-app notices shown to users.
package notification

import (
	"context"
	"fmt"
	"time"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
	"ms-eventhub/internal/utils"

	"github.com/uptrace/bun"
)

const (
	TypePaymentSuccess   = "payment_success"
	TypeDeliveryFailed   = "delivery_failed"
	TypeCheckoutCanceled = "checkout_canceled"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) Create(ctx context.Context, n *models.Notification) error {
	_, err := d.Bun.NewInsert().Model(n).Exec(ctx)
	return err
}

// ListByUser returns newest first.
func (d *DB) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var out []models.Notification
	err := d.Bun.NewSelect().
		Model(&out).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	return out, err
}

func (d *DB) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("read = ?", true).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
}

// Broadcaster pushes a stored notice to the user's live streams.
type Broadcaster interface {
	Publish(n models.Notification)
}

type Service struct {
	store       Store
	broadcaster Broadcaster
	logger      *logger.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithBroadcaster(b Broadcaster) Option { return func(s *Service) { s.broadcaster = b } }

func NewService(store Store, log *logger.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Notify records a notice. Failures are logged, never returned: a notice
// must not fail the operation that triggered it.
func (s *Service) Notify(ctx context.Context, userID, title, body, kind string) {
	n := &models.Notification{
		ID:        utils.NewID(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		Type:      kind,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		s.logger.Warn("NOTIFY", fmt.Sprintf("Failed to store %s notification for %s: %v", kind, userID, err))
		return
	}
	if s.broadcaster != nil {
		s.broadcaster.Publish(*n)
	}
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	return s.store.MarkRead(ctx, userID, id)
}
