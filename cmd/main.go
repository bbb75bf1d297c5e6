/**
 * @description
 * This is the main entry point for the payment-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * payment provider adapters, message brokers, repositories, the core application services,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/provider: Payment provider adapters.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/payeazy/payment-service/internal/api"
	"github.com/payeazy/payment-service/internal/app"
	"github.com/payeazy/payment-service/internal/config"
	"github.com/payeazy/payment-service/internal/store"
	"github.com/payeazy/payment-service/pkg/provider"
	pzrabbit "github.com/payeazy/payment-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting payment-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish finalized-intent events.
	var producer pzrabbit.Publisher
	rabbitProducer, err := pzrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; projecting synchronously\" err=%v", err)
		producer = nil
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Register the payment providers that have credentials configured. A
	// provider with no API key simply stays unavailable; it does not block boot.
	timeout := time.Duration(cfg.ProviderTimeoutSeconds) * time.Second
	var adapters []provider.Adapter
	for name, pc := range cfg.ProviderConfigs() {
		if strings.TrimSpace(pc.APIKey) == "" || strings.TrimSpace(pc.BaseURL) == "" {
			log.Printf("level=warn component=bootstrap msg=\"provider not configured; skipping\" provider=%s", name)
			continue
		}
		switch name {
		case "stripe":
			adapters = append(adapters, provider.NewStripe(pc.BaseURL, pc.APIKey, pc.WebhookSecret, timeout))
		case "cashapp":
			adapters = append(adapters, provider.NewCashApp(pc.BaseURL, pc.APIKey, pc.WebhookSecret, cfg.CashAppRedirectURL, timeout))
		case "venmo":
			adapters = append(adapters, provider.NewVenmo(pc.BaseURL, pc.APIKey, pc.WebhookSecret, timeout))
		case "chime":
			adapters = append(adapters, provider.NewChime(pc.BaseURL, pc.APIKey, pc.WebhookSecret, timeout))
		case "googlepay":
			adapters = append(adapters, provider.NewGooglePay(pc.BaseURL, pc.APIKey, pc.WebhookSecret, timeout))
		case "paypal":
			adapters = append(adapters, provider.NewPayPal(pc.BaseURL, pc.APIKey, pc.WebhookSecret, timeout))
		}
	}
	registry := provider.NewRegistry(adapters...)
	log.Printf("level=info component=bootstrap msg=\"providers registered\" providers=%v", registry.Names())

	// Connect Redis for the webhook replay guard and rate limiter. The durable
	// unique index covers de-duplication when Redis is unavailable.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; webhook fast paths disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; webhook fast paths disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; webhook fast paths disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}
	var guard *app.RedisWebhookGuard
	if redisClient != nil {
		guard = app.NewRedisWebhookGuard(redisClient, cfg.RedisKeyPrefix, time.Duration(cfg.WebhookSeenTTLHours)*time.Hour)
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application services with their dependencies.
	paymentService := app.NewService(
		repository,
		registry,
		producer,
		cfg.MinIntentAmountCents,
		cfg.MaxIntentAmountCents,
		cfg.Currencies(),
		timeout,
	)
	paymentService.Projector().CommissionBps = cfg.AgentCommissionBps
	reconciler := app.NewReconciler(repository, registry, paymentService, guard)

	// Initialize the API handlers.
	paymentHandlers := api.NewPaymentHandlers(paymentService, reconciler, guard, cfg.WebhookRateLimitPerMinute)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/payments", api.PaymentRoutes(paymentHandlers, cfg.ClerkJWKSURL, cfg.InternalAPIKey))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	// Wire up the finalized-intent consumer when the broker is reachable; with
	// no broker the reconciler already projects synchronously.
	if producer != nil {
		finalizedConsumer := app.NewIntentFinalizedConsumer(paymentService.Projector())

		rabbitConsumer, err := pzrabbit.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", err)
		}
		defer rabbitConsumer.Close()

		finalizedBindings := map[string]func([]byte) bool{
			"intent.finalized.succeeded": finalizedConsumer.HandleMessage,
			"intent.finalized.failed":    finalizedConsumer.HandleMessage,
		}

		if err := rabbitConsumer.ConsumeWithBindings(pzrabbit.EventsExchange, cfg.IntentEventQueue, finalizedBindings); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"finalized consumer start failed\" err=%v", err)
		}
	}

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
