package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Money / commission settings. The commission rate is expressed in basis
	// points so commission math stays integer-only end to end.
	Currency             string
	CommissionBasisPts   int64
	MarketplaceFeeCents  int64
	AuthJWTSecret        string
	CORSAllowedOrigins   []string
	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	AppointmentCacheTTL  time.Duration
	PaymentTimeout       time.Duration

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeDryRun        bool

	// Redis list-read cache
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Email notifications
	EmailProvider     string
	SESFromEmail      string
	SESFromName       string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	AWSRegion         string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		Currency:            strings.ToLower(getEnv("CURRENCY", "eur")),
		CommissionBasisPts:  int64(getEnvAsInt("COMMISSION_BASIS_POINTS", 500)),
		MarketplaceFeeCents: int64(getEnvAsInt("MARKETPLACE_FEE_CENTS", 99)),
		AuthJWTSecret:       getEnv("AUTH_JWT_SECRET", ""),
		CORSAllowedOrigins:  splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
		OutboxPollInterval:  getEnvAsDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
		OutboxBatchSize:     getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
		AppointmentCacheTTL: getEnvAsDuration("APPOINTMENT_CACHE_TTL", 30*time.Second),
		PaymentTimeout:      getEnvAsDuration("PAYMENT_TIMEOUT", 10*time.Second),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeDryRun:        getEnvAsBool("STRIPE_DRY_RUN", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "ses"))),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "EquiCare"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "EquiCare"),
		AWSRegion:         getEnv("AWS_REGION", "eu-west-1"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
