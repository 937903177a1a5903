package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"

	"github.com/segmentio/kafka-go"
)

var (
	ErrQueueFull         = errors.New("delivery queue is full")
	ErrDispatcherStopped = errors.New("delivery dispatcher stopped")
)

// Handler performs one delivery attempt.
type Handler interface {
	Deliver(ctx context.Context, ticketID string) error
}

// GiveUpHandler is told once a ticket will not be retried again.
type GiveUpHandler interface {
	GiveUp(ctx context.Context, ticketID string, cause error)
}

type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: 2 * time.Second}
}

// delay doubles per attempt: Backoff, 2*Backoff, 4*Backoff...
func (p RetryPolicy) delay(attempt int) time.Duration {
	return p.Backoff * time.Duration(1<<uint(attempt-1))
}

// Run attempts delivery until it succeeds, fails permanently, or the
// attempts are exhausted.
func Run(ctx context.Context, h Handler, ticketID string, p RetryPolicy, log *logger.Logger) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = h.Deliver(ctx, ticketID); err == nil {
			return nil
		}
		if errors.Is(err, ErrNoRecipient) || attempt == p.MaxAttempts {
			break
		}

		wait := p.delay(attempt)
		log.Warn("DELIVERY", fmt.Sprintf("Attempt %d/%d for ticket %s failed, retrying in %s: %v", attempt, p.MaxAttempts, ticketID, wait, err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	log.Error("DELIVERY", fmt.Sprintf("Giving up on ticket %s: %v", ticketID, err))
	if g, ok := h.(GiveUpHandler); ok {
		g.GiveUp(ctx, ticketID, err)
	}
	return err
}

// LocalDispatcher delivers on in-process worker goroutines.
type LocalDispatcher struct {
	handler Handler
	policy  RetryPolicy
	workers int
	jobs    chan string
	logger  *logger.Logger

	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLocalDispatcher(h Handler, policy RetryPolicy, workers int, log *logger.Logger) *LocalDispatcher {
	if workers < 1 {
		workers = 1
	}
	return &LocalDispatcher{
		handler: h,
		policy:  policy,
		workers: workers,
		jobs:    make(chan string, 256),
		logger:  log,
	}
}

func (d *LocalDispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-d.jobs:
					_ = Run(ctx, d.handler, id, d.policy, d.logger)
				}
			}
		}()
	}
	d.logger.Info("DELIVERY", fmt.Sprintf("Started %d delivery workers", d.workers))
}

// Dispatch enqueues without blocking. The request context is not carried
// into the job.
func (d *LocalDispatcher) Dispatch(_ context.Context, ticketID string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.jobs <- ticketID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels in-flight retries and waits for workers to exit.
func (d *LocalDispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// DeliveryPublisher hands delivery requests to the broker.
type DeliveryPublisher interface {
	PublishDeliveryRequest(ctx context.Context, req models.DeliveryRequest) error
}

// KafkaDispatcher queues deliveries for the delivery worker.
type KafkaDispatcher struct {
	publisher DeliveryPublisher
}

func NewKafkaDispatcher(p DeliveryPublisher) *KafkaDispatcher {
	return &KafkaDispatcher{publisher: p}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, ticketID string) error {
	return d.publisher.PublishDeliveryRequest(ctx, models.DeliveryRequest{TicketID: ticketID, Attempt: 1})
}

// HandleDeliveryMessage adapts Run to a Kafka consumer handler.
func HandleDeliveryMessage(h Handler, p RetryPolicy, log *logger.Logger) func(ctx context.Context, msg kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var req models.DeliveryRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Dropping malformed delivery request at offset %d: %v", msg.Offset, err))
			return err
		}
		if req.TicketID == "" {
			return errors.New("delivery request without ticket id")
		}
		return Run(ctx, h, req.TicketID, p, log)
	}
}
