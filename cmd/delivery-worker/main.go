// Command delivery-worker consumes ticket delivery requests from Kafka and
// mails each buyer their PDF and QR codes.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-eventhub/internal/config"
	"ms-eventhub/internal/delivery"
	"ms-eventhub/internal/kafka"
	"ms-eventhub/internal/logger"
	ticket_db "ms-eventhub/internal/tickets/db"
)

func connect(ctx context.Context, cfg config.DatabaseConfig, logger *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	for i := 0; i < 5; i++ {
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			if err = sqldb.PingContext(ctx); err == nil {
				break
			}
		}
		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL (attempt %d/5): %v", i+1, err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Giving up on PostgreSQL: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	logger.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	logger := logger.NewLogger("delivery-worker")
	defer logger.Close()

	cfg := config.Load()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bunDB := connect(ctx, cfg.Database, logger)
	defer bunDB.Close()

	store, err := delivery.NewStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("STORAGE", fmt.Sprintf("Failed to initialize artifact store: %v", err))
	}

	tickets := &ticket_db.DB{Bun: bunDB}
	artifacts := delivery.NewArtifacts(store, delivery.NewQRGenerator(cfg.Storage.QRSecret), tickets, logger)
	deliverer := delivery.NewDeliverer(tickets, artifacts, delivery.NewSMTPMailer(cfg.Email), tickets, logger)
	policy := delivery.RetryPolicy{MaxAttempts: cfg.Delivery.MaxAttempts, Backoff: cfg.Delivery.Backoff}

	// Tickets whose delivery request never reached Kafka are delivered from here.
	sweeper := delivery.NewSweeper(tickets, func(ctx context.Context, id string) error {
		return delivery.Run(ctx, deliverer, id, policy, logger)
	}, cfg.Delivery.StaleAfter, logger)
	sweeper.Start(ctx, cfg.Delivery.SweepInterval)

	topic := cfg.Kafka.Topics.DeliveryRequested
	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{topic}, logger); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topic, cfg.Kafka.GroupID, logger)
	defer consumer.Close()

	logger.Info("APP", fmt.Sprintf("🚀 Delivery worker consuming %s as %s", topic, cfg.Kafka.GroupID))
	if err := consumer.Run(ctx, delivery.HandleDeliveryMessage(deliverer, policy, logger)); err != nil {
		logger.Fatal("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
	}
	logger.Info("APP", "✅ Delivery worker shutdown complete")
}
