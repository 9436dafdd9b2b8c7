// Package app wires configuration, logging and backing services for the
// Lambda functions.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/calmbackend/internal/ai"
	"github.com/calmbackend/internal/aicache"
	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/config"
	"github.com/calmbackend/internal/db"
	"github.com/calmbackend/internal/encryption"
	"github.com/calmbackend/internal/idempotency"
	"github.com/calmbackend/internal/llm"
	"github.com/calmbackend/internal/logging"
	"github.com/calmbackend/internal/templates"
	"github.com/calmbackend/internal/users"
	"github.com/sirupsen/logrus"
)

// Runtime is shared by every invocation of one warm Lambda container.
type Runtime struct {
	Config *config.Config
	Log    *logrus.Entry
	DB     *sql.DB
	Tokens *auth.Tokens
	Users  *users.Repository
}

func Bootstrap(ctx context.Context, function string) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(function, cfg.LogLevel)

	if err := cfg.RequireJWT(); err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenIssuer, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokens: %w", err)
	}

	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	conn, err := db.InitDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Config: cfg,
		Log:    log,
		DB:     conn,
		Tokens: tokens,
		Users:  users.NewRepository(conn),
	}, nil
}

// MustBootstrap exits the process when the container cannot start.
func MustBootstrap(function string) *Runtime {
	rt, err := Bootstrap(context.Background(), function)
	if err != nil {
		fmt.Printf("Error initializing %s: %v\n", function, err)
		os.Exit(1)
	}
	return rt
}

func (r *Runtime) Tokenizer() *llm.Tokenizer {
	t := llm.TokenizerFor(r.Config.OpenAIModel)
	if !t.IsPrecise() {
		r.Log.WithField("model", r.Config.OpenAIModel).Warn("BPE table unavailable, estimating tokens from length")
	}
	return t
}

func (r *Runtime) AI() *ai.Client {
	return ai.NewClient(ai.Config{
		APIKey:     r.Config.OpenAIAPIKey,
		BaseURL:    r.Config.OpenAIBaseURL,
		Model:      r.Config.OpenAIModel,
		Timeout:    r.Config.OpenAITimeout,
		MaxRetries: r.Config.MaxRetries,
	}, r.Tokenizer())
}

// Budget combines an in-process hourly quota with the DynamoDB daily spend.
func (r *Runtime) Budget(ctx context.Context) (*llm.Budget, error) {
	spend, err := llm.NewCostControlService(ctx, r.Config.UserSpendTableName, r.Config.DailySpendLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cost control service: %w", err)
	}
	quota := llm.NewQuotaTracker(llm.Limits{
		Requests: r.Config.HourlyRequestLimit,
		Tokens:   r.Config.HourlyTokenLimit,
		Cost:     r.Config.HourlyCostLimit,
	})
	return &llm.Budget{Quota: quota, Spend: spend, Model: r.Config.OpenAIModel}, nil
}

// Cache returns a response cache warmed from the on-disk snapshot, if any.
func (r *Runtime) Cache() *aicache.Cache {
	c := aicache.New(aicache.WithCapacity(r.Config.CacheCapacity), aicache.WithTTL(r.Config.CacheTTL))
	if r.Config.CacheSnapshotPath == "" {
		return c
	}
	n, err := c.Load(r.Config.CacheSnapshotPath)
	if err != nil {
		r.Log.WithError(err).Warn("failed to load cache snapshot")
		return c
	}
	r.Log.WithField("entries", n).Debug("cache snapshot loaded")
	return c
}

// SaveCache drops expired entries and writes the snapshot. Failures are
// logged only.
func (r *Runtime) SaveCache(c *aicache.Cache) {
	purged := c.Purge()
	stats := c.Stats()
	r.Log.WithFields(logrus.Fields{
		"entries": stats.Entries,
		"hits":    stats.Hits,
		"misses":  stats.Misses,
		"purged":  purged,
	}).Debug("response cache stats")

	if r.Config.CacheSnapshotPath == "" {
		return
	}
	if err := c.Save(r.Config.CacheSnapshotPath); err != nil {
		r.Log.WithError(err).Warn("failed to save cache snapshot")
	}
}

func (r *Runtime) Templates() (*templates.Library, error) {
	lib, err := templates.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load exercise templates: %w", err)
	}
	return lib, nil
}

func (r *Runtime) Idempotency(ctx context.Context) (*idempotency.Service, error) {
	svc, err := idempotency.NewService(ctx, r.Config.IdempotencyTable, r.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize idempotency service: %w", err)
	}
	return svc, nil
}

func (r *Runtime) Cipher(ctx context.Context) (*encryption.Cipher, error) {
	c, err := encryption.NewCipher(ctx, r.Config.KMSKeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption service: %w", err)
	}
	return c, nil
}
