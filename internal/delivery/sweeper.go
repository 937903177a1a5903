package delivery

import (
	"context"
	"fmt"
	"time"

	"ms-eventhub/internal/logger"
)

const sweepBatch = 100

// PendingLister finds tickets whose delivery was never attempted.
type PendingLister interface {
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
}

// Sweeper requeues tickets left pending because their dispatch was lost,
// e.g. a full local queue or a failed Kafka publish.
type Sweeper struct {
	pending    PendingLister
	dispatch   func(ctx context.Context, ticketID string) error
	staleAfter time.Duration
	logger     *logger.Logger
	now        func() time.Time
}

func NewSweeper(pending PendingLister, dispatch func(ctx context.Context, ticketID string) error, staleAfter time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{pending: pending, dispatch: dispatch, staleAfter: staleAfter, logger: log, now: time.Now}
}

// Sweep requeues one batch and returns how many tickets were handed off.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.pending.ListStalePending(ctx, s.now().UTC().Add(-s.staleAfter), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending deliveries: %w", err)
	}

	n := 0
	for _, id := range ids {
		if err := s.dispatch(ctx, id); err != nil {
			s.logger.Warn("DELIVERY", fmt.Sprintf("Requeue of ticket %s failed: %v", id, err))
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("DELIVERY", fmt.Sprintf("Requeued %d stale pending ticket(s)", n))
	}
	return n, nil
}

// Start sweeps once immediately and then every interval until ctx ends.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("DELIVERY", err.Error())
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
