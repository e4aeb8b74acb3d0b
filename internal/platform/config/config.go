// Package config loads service configuration once, in main, and hands the
// resulting immutable struct to component constructors. Nothing in this
// repository reads the environment lazily.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config captures every tunable the service understands.
type Config struct {
	AppName string `env:"THREADHUB_APP_NAME" envDefault:"threadhub"`
	AppEnv  string `env:"THREADHUB_ENV" envDefault:"local"`

	HTTPAddr string `env:"THREADHUB_HTTP_ADDR" envDefault:":8080"`

	DBHost     string `env:"THREADHUB_DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"THREADHUB_DB_PORT" envDefault:"5432"`
	DBUser     string `env:"THREADHUB_DB_USER" envDefault:"threadhub"`
	DBPassword string `env:"THREADHUB_DB_PASSWORD" envDefault:"threadhub"`
	DBName     string `env:"THREADHUB_DB_NAME" envDefault:"threadhub"`
	DBSSLMode  string `env:"THREADHUB_DB_SSLMODE" envDefault:"disable"`

	JWTSigningKey string        `env:"THREADHUB_JWT_SIGNING_KEY" envDefault:"dev-secret-change-in-production"`
	JWTIssuer     string        `env:"THREADHUB_JWT_ISSUER" envDefault:"threadhub"`
	JWTAudience   string        `env:"THREADHUB_JWT_AUDIENCE" envDefault:"threadhub-clients"`
	AccessTTL     time.Duration `env:"THREADHUB_JWT_ACCESS_TTL" envDefault:"168h"`

	NATSURL         string        `env:"NATS_URL"`
	NATSSubjectRoot string        `env:"THREADHUB_NATS_SUBJECT_ROOT" envDefault:"threadhub"`
	NATSQueueGroup  string        `env:"THREADHUB_NATS_QUEUE" envDefault:"threadhub"`
	RedisURL        string        `env:"THREADHUB_REDIS_URL"`
	LoginRateLimit  int           `env:"THREADHUB_LOGIN_RATE_LIMIT" envDefault:"10"`
	LoginRateWindow time.Duration `env:"THREADHUB_LOGIN_RATE_WINDOW" envDefault:"1m"`

	SMTPHost  string `env:"THREADHUB_SMTP_HOST"`
	SMTPPort  int    `env:"THREADHUB_SMTP_PORT" envDefault:"587"`
	SMTPUser  string `env:"THREADHUB_SMTP_USER"`
	SMTPPass  string `env:"THREADHUB_SMTP_PASSWORD"`
	SMTPFrom  string `env:"THREADHUB_SMTP_FROM"`
	PublicURL string `env:"THREADHUB_PUBLIC_URL" envDefault:"http://localhost:3000"`

	OAuthGoogleClientID     string `env:"OAUTH_GOOGLE_CLIENT_ID"`
	OAuthGoogleClientSecret string `env:"OAUTH_GOOGLE_CLIENT_SECRET"`
	OAuthGitHubClientID     string `env:"OAUTH_GITHUB_CLIENT_ID"`
	OAuthGitHubClientSecret string `env:"OAUTH_GITHUB_CLIENT_SECRET"`
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load for main, where a broken environment is fatal.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
