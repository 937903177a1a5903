package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Topics Topics
	logger *logger.Logger
}

// Topics names the topics this service writes to.
type Topics struct {
	TicketIssued      string
	DeliveryRequested string
}

func NewProducer(brokers []string, topics Topics, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Topics: topics, logger: log}
}

// Publish writes one keyed message to topic.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.LogKafka("PUBLISH", topic, key)
	return nil
}

func (p *Producer) publishJSON(ctx context.Context, topic, key string, v interface{}) error {
	msgBytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, key, msgBytes)
}

// PublishTicketIssued streams the ticket issued event to Kafka
func (p *Producer) PublishTicketIssued(ctx context.Context, ev models.TicketIssuedEvent) error {
	return p.publishJSON(ctx, p.Topics.TicketIssued, ev.TicketID.String(), ev)
}

// PublishDeliveryRequest queues a delivery job for the worker
func (p *Producer) PublishDeliveryRequest(ctx context.Context, req models.DeliveryRequest) error {
	return p.publishJSON(ctx, p.Topics.DeliveryRequested, req.TicketID, req)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
