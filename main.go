package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-eventhub/internal/analytics"
	analytics_api "ms-eventhub/internal/analytics/api"
	"ms-eventhub/internal/auth"
	"ms-eventhub/internal/checkout"
	"ms-eventhub/internal/config"
	"ms-eventhub/internal/delivery"
	"ms-eventhub/internal/discount"
	"ms-eventhub/internal/events"
	event_db "ms-eventhub/internal/events/db"
	"ms-eventhub/internal/events/event_api"
	"ms-eventhub/internal/favorites"
	favorite_db "ms-eventhub/internal/favorites/db"
	"ms-eventhub/internal/kafka"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/notification"
	"ms-eventhub/internal/order"
	"ms-eventhub/internal/order/order_api"
	rediswrap "ms-eventhub/internal/order/redis"
	"ms-eventhub/internal/promo"
	promo_db "ms-eventhub/internal/promo/db"
	promo_redis "ms-eventhub/internal/promo/redis"
	"ms-eventhub/internal/ratelimit"
	"ms-eventhub/internal/sse"
	"ms-eventhub/internal/tickets"
	ticket_db "ms-eventhub/internal/tickets/db"
	"ms-eventhub/internal/tickets/ticket_api"
)

// holdGrace keeps a seat hold alive a little past the checkout session it guards.
const holdGrace = 5 * time.Minute

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, logger *logger.Logger) auth.Verifier {
	if cfg.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.ClientID)
		if err != nil {
			logger.Fatal("AUTH", fmt.Sprintf("Failed to initialize OIDC verifier: %v", err))
		}
		logger.Info("AUTH", fmt.Sprintf("Verifying tokens against issuer %s", cfg.OIDCIssuer))
		return v
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("CONFIG", "Either OIDC_ISSUER or JWT_SECRET must be set")
	}
	logger.Info("AUTH", "Verifying HMAC-signed tokens")
	return auth.NewHMACVerifier(cfg.JWTSecret)
}

func requestLogger(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}

func main() {
	logger := logger.NewLogger("eventhub")
	defer logger.Close()

	logger.Info("APP", "Starting EventHub service initialization")
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	policy := discount.Policy{
		GroupPct:         cfg.Promo.GroupDiscountPct,
		GroupMinQuantity: cfg.Promo.GroupMinimumTickets,
		DefaultPromoPct:  cfg.Promo.DefaultDiscountPct,
	}

	ticketStore := &ticket_db.DB{Bun: bunDB}
	eventService := events.NewService(&event_db.DB{Bun: bunDB}, ticketStore, logger)
	hub := sse.NewHub()
	notifications := notification.NewService(&notification.DB{Bun: bunDB}, logger, notification.WithBroadcaster(hub))
	ledger := promo.NewLedger(eventService, &promo_db.DB{Bun: bunDB}, promo_redis.NewClaims(redisClient, cfg.Promo.ClaimTTL), policy, logger)

	// --- Delivery ---
	artifactStore, err := delivery.NewStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("STORAGE", fmt.Sprintf("Failed to initialize artifact store: %v", err))
	}
	logger.Info("STORAGE", fmt.Sprintf("Ticket artifacts stored with driver %q", cfg.Storage.Driver))

	artifacts := delivery.NewArtifacts(artifactStore, delivery.NewQRGenerator(cfg.Storage.QRSecret), ticketStore, logger)
	deliverer := delivery.NewDeliverer(ticketStore, artifacts, delivery.NewSMTPMailer(cfg.Email), ticketStore, logger)

	ticketOpts := []tickets.Option{tickets.WithArtifacts(artifacts), tickets.WithEventOwner(eventService)}
	var dispatcher tickets.Dispatcher
	if cfg.Kafka.Enabled {
		logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers %v", cfg.Kafka.Brokers))
		topics := kafka.Topics{TicketIssued: cfg.Kafka.Topics.TicketIssued, DeliveryRequested: cfg.Kafka.Topics.DeliveryRequested}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{topics.TicketIssued, topics.DeliveryRequested}, logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, topics, logger)
		defer producer.Close()

		dispatcher = delivery.NewKafkaDispatcher(producer)
		ticketOpts = append(ticketOpts, tickets.WithPublisher(producer))
		logger.Info("DELIVERY", "Ticket delivery handed off to the delivery worker over Kafka")
	} else {
		local := delivery.NewLocalDispatcher(deliverer, delivery.RetryPolicy{
			MaxAttempts: cfg.Delivery.MaxAttempts,
			Backoff:     cfg.Delivery.Backoff,
		}, cfg.Delivery.Workers, logger)
		local.Start(ctx)
		defer local.Stop()
		delivery.NewSweeper(ticketStore, local.Dispatch, cfg.Delivery.StaleAfter, logger).Start(ctx, cfg.Delivery.SweepInterval)

		dispatcher = local
		logger.Info("DELIVERY", fmt.Sprintf("Ticket delivery running in-process with %d workers", cfg.Delivery.Workers))
	}
	ticketService := tickets.NewService(ticketStore, dispatcher, logger, ticketOpts...)

	// --- Checkout ---
	provider, err := checkout.NewStripeProvider(cfg.Stripe.SecretKey, logger)
	if err != nil {
		logger.Fatal("STRIPE", fmt.Sprintf("Failed to initialize Stripe: %v", err))
	}
	adapter := checkout.NewAdapter(provider, checkout.Options{
		Currency:      cfg.Stripe.Currency,
		ClientBaseURL: cfg.Stripe.ClientBaseURL,
		SessionTTL:    cfg.Reservation.HoldTTL,
	})
	holdTTL := max(cfg.Reservation.HoldTTL, adapter.SessionTTL()+holdGrace)
	if cfg.Stripe.WebhookSecret == "" {
		logger.Warn("CONFIG", "STRIPE_WEBHOOK_SECRET not set, webhook deliveries will be rejected")
	}

	orderService := order.NewService(order.Dependencies{
		Events:        eventService,
		Promos:        ledger,
		Holds:         rediswrap.NewReservations(redisClient, holdTTL),
		Checkout:      adapter,
		Tickets:       ticketService,
		Notifier:      notifications,
		Policy:        policy,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Logger:        logger,
	})

	orderHandler := &order_api.Handler{OrderService: orderService, Promos: ledger, Logger: logger}
	eventHandler := &event_api.Handler{Events: eventService, Logger: logger}
	ticketHandler := &ticket_api.Handler{TicketService: ticketService, Logger: logger}
	favoriteHandler := &favorites.Handler{
		Favorites: favorites.NewService(&favorite_db.DB{Bun: bunDB}, eventService, logger),
		Logger:    logger,
	}
	notificationHandler := &notification.Handler{Notifications: notifications, Logger: logger}
	analyticsHandler := analytics_api.NewHandler(analytics.NewService(analytics.NewDB(bunDB), eventService), logger)
	promoLimiter := ratelimit.PerMinute(cfg.Promo.ValidatePerMinute)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Stripe.ClientBaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Public Routes ---
	r.Post("/event/stripe/webhook", orderHandler.StripeWebhook)
	r.Get("/event", eventHandler.ListEvents)
	r.Get("/event/{id}", eventHandler.GetEvent)
	r.Get("/event/{id}/quote", orderHandler.Quote)
	r.Get("/event/{id}/tickets/count", eventHandler.TicketsCount)
	logger.Info("ROUTER", "Public event routes registered")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(newVerifier(ctx, cfg.Auth, logger)))
		logger.Info("AUTH", "JWT middleware applied to protected API routes")

		r.Post("/event/buy", orderHandler.Buy)
		r.Get("/event/verify-payment", orderHandler.VerifyPayment)
		r.With(promoLimiter.Middleware).Post("/event/validate-promo", orderHandler.ValidatePromo)
		r.Get("/event/session/{sessionId}", orderHandler.SessionDetails)
		r.Delete("/event/session/{sessionId}", orderHandler.CancelCheckout)
		logger.Info("ROUTER", "Checkout routes registered under /event")

		r.Post("/event", eventHandler.CreateEvent)
		r.Post("/venue", eventHandler.CreateVenue)
		r.Put("/event/{id}/promo", eventHandler.UpdatePromo)
		analyticsHandler.RegisterRoutes(r)

		r.Get("/event/favorites", favoriteHandler.List)
		r.Post("/event/{id}/favorite", favoriteHandler.Add)
		r.Delete("/event/{id}/favorite", favoriteHandler.Remove)

		r.Route("/ticket", func(r chi.Router) {
			r.Get("/user", ticketHandler.ListUserTickets)
			r.Get("/event/{eventId}", ticketHandler.ListEventTickets)
			r.Get("/{ticketId}", ticketHandler.ViewTicket)
			r.Delete("/{ticketId}", ticketHandler.DeleteTicket)
			r.Get("/{ticketId}/qrcode", ticketHandler.QRCode)
			r.Get("/{ticketId}/download", ticketHandler.DownloadPDF)
		})
		logger.Info("ROUTER", "Ticket routes registered under /ticket")

		r.Get("/notifications", notificationHandler.List)
		r.Get("/notifications/stream", sse.Handler(hub, 25*time.Second, logger))
		r.Patch("/notifications/{id}/read", notificationHandler.MarkRead)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 EventHub service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ EventHub service shutdown complete")
	}
}
