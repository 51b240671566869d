package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/equicare/equicare-platform/internal/api/router"
	"github.com/equicare/equicare-platform/internal/appointments"
	appconfig "github.com/equicare/equicare-platform/internal/config"
	"github.com/equicare/equicare-platform/internal/directory"
	"github.com/equicare/equicare-platform/internal/events"
	"github.com/equicare/equicare-platform/internal/notify"
	"github.com/equicare/equicare-platform/internal/observability/metrics"
	"github.com/equicare/equicare-platform/internal/payments"
	"github.com/equicare/equicare-platform/pkg/logging"
)

func main() {
	// Load .env file when present; containers rely on real environment.
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting equicare-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	appMetrics := metrics.NewAppointmentMetrics(registry)

	// Initialize repositories and services. Without DATABASE_URL the server
	// runs entirely in memory, which is enough for local demos and tests.
	var (
		repo        appointments.Repository
		connections directory.Connections
		horses      directory.Horses
		users       directory.Users
		sink        events.Sink
		processed   events.ProcessedTracker
		accounts    payments.AccountResolver
		outboxStore *events.OutboxStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		repo = appointments.NewPostgresRepository(pool)
		dir := directory.NewPostgresDirectory(pool)
		connections, horses, users = dir, dir, dir
		outboxStore = events.NewOutboxStore(pool)
		sink = outboxStore
		processed = events.NewProcessedStore(pool)
		accounts = payments.NewPostgresAccounts(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		repo = appointments.NewInMemoryRepository()
		dir := directory.NewInMemoryDirectory()
		connections, horses, users = dir, dir, dir
		sink = events.NewInMemoryOutbox()
		processed = events.NewInMemoryProcessed()
		accounts = payments.NewInMemoryAccounts()
	}

	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		repo = appointments.NewCachedRepository(repo, redis.NewClient(opts), cfg.AppointmentCacheTTL)
		logger.Info("appointment list cache enabled", "addr", cfg.RedisAddr)
	}

	svc := appointments.NewService(repo, connections, horses, sink, logger).
		WithCommissionBasisPoints(cfg.CommissionBasisPts).
		WithMetrics(appMetrics)

	processor := payments.NewStripeProcessor(cfg.StripeSecretKey, logger).
		WithDryRun(cfg.StripeDryRun).
		WithHTTPClient(&http.Client{Timeout: cfg.PaymentTimeout})

	orchestrator := payments.NewOrchestrator(repo, processor, logger).
		WithAccounts(accounts).
		WithInvoices(payments.NewStaticInvoices(cfg.PublicBaseURL)).
		WithOutbox(sink).
		WithMetrics(appMetrics).
		WithCurrency(cfg.Currency).
		WithMarketplaceFeeCents(cfg.MarketplaceFeeCents)

	// Initialize handlers
	appointmentsHandler := appointments.NewHandler(svc, logger)
	intentHandler := payments.NewIntentHandler(orchestrator, logger)
	webhookHandler := payments.NewWebhookHandler(cfg.StripeWebhookSecret, orchestrator, processed, logger).
		WithMetrics(appMetrics)

	// Outbox delivery turns stored appointment events into emails. Delivery
	// only runs against the durable store; the in-memory sink has no poller.
	sender := buildEmailSender(ctx, cfg, logger)
	notifier := notify.NewService(sender, users, logger)
	if outboxStore != nil {
		deliverer := events.NewDeliverer(outboxStore, notifier, logger).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxPollInterval)
		go deliverer.Start(ctx)
	}

	// Setup router
	routerCfg := &router.Config{
		Logger:              logger,
		AppointmentsHandler: appointmentsHandler,
		IntentHandler:       intentHandler,
		StripeWebhook:       webhookHandler,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AuthJWTSecret:       cfg.AuthJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	stop()

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildEmailSender picks the configured email provider, falling back to the
// logging stub so notification delivery never blocks startup.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config, using stub email sender", "error", err)
			break
		}
		if cfg.SESFromEmail == "" {
			logger.Warn("SES_FROM_EMAIL not set, using stub email sender")
			break
		}
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			return sender
		}
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("SENDGRID_API_KEY not set, using stub email sender")
	}
	return notify.NewStubEmailSender(logger)
}
