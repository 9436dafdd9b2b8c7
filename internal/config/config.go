package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds every setting the functions read from the environment.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	JWTSecret   string        `env:"JWT_SECRET"`
	TokenTTL    time.Duration `env:"TOKEN_TTL,default=720h"`
	TokenIssuer string        `env:"TOKEN_ISSUER,default=calm-backend"`

	KMSKeyID           string  `env:"KMS_KEY_ID"`
	UserSpendTableName string  `env:"USER_SPEND_TABLE_NAME,default=calm-user-spend"`
	IdempotencyTable   string  `env:"IDEMPOTENCY_TABLE_NAME,default=calm-idempotency"`
	SubscriptionSecret string  `env:"SUBSCRIPTION_WEBHOOK_SECRET"`
	DailySpendLimit    float64 `env:"DAILY_SPEND_LIMIT,default=5.0"`

	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL,default=https://api.openai.com/v1"`
	OpenAIModel   string        `env:"OPENAI_MODEL,default=gpt-4o-mini"`
	OpenAITimeout time.Duration `env:"OPENAI_TIMEOUT,default=25s"`
	MaxRetries    int           `env:"OPENAI_MAX_RETRIES,default=3"`

	HourlyRequestLimit int     `env:"HOURLY_REQUEST_LIMIT,default=30"`
	HourlyTokenLimit   int     `env:"HOURLY_TOKEN_LIMIT,default=50000"`
	HourlyCostLimit    float64 `env:"HOURLY_COST_LIMIT,default=0.50"`

	CacheCapacity       int           `env:"CACHE_CAPACITY,default=1000"`
	CacheTTL            time.Duration `env:"CACHE_TTL,default=1h"`
	SimilarityThreshold float64       `env:"SIMILARITY_THRESHOLD,default=0.8"`
	CacheSnapshotPath   string        `env:"CACHE_SNAPSHOT_PATH,default=/tmp/calm-ai-cache.json"`

	CompanionRatePerMinute int `env:"COMPANION_RATE_PER_MINUTE,default=6"`
	CompanionBurst         int `env:"COMPANION_BURST,default=3"`
}

// Load reads an optional .env file and decodes the environment into a Config.
func Load() (*Config, error) {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	} else {
		// .env is optional for local runs
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	return &cfg, nil
}

// RequireDatabase returns an error when DATABASE_URL is missing.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	return nil
}

// RequireJWT returns an error when JWT_SECRET is missing.
func (c *Config) RequireJWT() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	return nil
}
