package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Stripe      StripeConfig
	Commerce    CommerceConfig
	Certificate CertificateConfig
	Reconcile   ReconcileConfig
	AWS         AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	PublicBaseURL      string // frontend origin used for checkout success/cancel redirects
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// StripeConfig for checkout sessions and webhooks.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	Timeout       time.Duration
}

// CommerceConfig holds pricing and payout settings.
type CommerceConfig struct {
	// AdminCommission is the platform's fraction of every payment, in [0,1).
	AdminCommission decimal.Decimal
}

// CertificateConfig holds certificate eligibility settings.
type CertificateConfig struct {
	PassScore float64
}

// ReconcileConfig drives the pending-payment sweeper in cmd/worker.
type ReconcileConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
	Workers    int
}

// AWSConfig holds AWS credentials and the webhook archive bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	WebhookBucket   string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	commission, err := decimal.NewFromString(getEnv("ADMIN_COMMISSION", "0.15"))
	if err != nil {
		return nil, fmt.Errorf("parse ADMIN_COMMISSION: %w", err)
	}
	if commission.IsNegative() || commission.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("ADMIN_COMMISSION must be in [0,1), got %s", commission)
	}
	passScore, err := strconv.ParseFloat(getEnv("CERTIFICATE_PASS_SCORE", "70"), 64)
	if err != nil {
		return nil, fmt.Errorf("parse CERTIFICATE_PASS_SCORE: %w", err)
	}
	if passScore < 0 || passScore > 100 {
		return nil, fmt.Errorf("CERTIFICATE_PASS_SCORE must be in [0,100], got %v", passScore)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "learnhub"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24*7),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
			Timeout:       time.Duration(getEnvInt("PAYMENT_TIMEOUT_SEC", 10)) * time.Second,
		},
		Commerce: CommerceConfig{
			AdminCommission: commission,
		},
		Certificate: CertificateConfig{
			PassScore: passScore,
		},
		Reconcile: ReconcileConfig{
			Interval:   time.Duration(getEnvInt("RECONCILE_INTERVAL_SEC", 300)) * time.Second,
			StaleAfter: time.Duration(getEnvInt("RECONCILE_STALE_AFTER_SEC", 300)) * time.Second,
			BatchSize:  getEnvInt("RECONCILE_BATCH_SIZE", 50),
			Workers:    getEnvInt("RECONCILE_WORKERS", 5),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			WebhookBucket:   getEnv("AWS_S3_WEBHOOK_BUCKET", ""),
		},
	}
	if err := cfg.Reconcile.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r ReconcileConfig) validate() error {
	switch {
	case r.Interval <= 0:
		return fmt.Errorf("RECONCILE_INTERVAL_SEC must be positive, got %v", r.Interval)
	case r.StaleAfter <= 0:
		return fmt.Errorf("RECONCILE_STALE_AFTER_SEC must be positive, got %v", r.StaleAfter)
	case r.BatchSize <= 0:
		return fmt.Errorf("RECONCILE_BATCH_SIZE must be positive, got %d", r.BatchSize)
	case r.Workers <= 0:
		return fmt.Errorf("RECONCILE_WORKERS must be positive, got %d", r.Workers)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
