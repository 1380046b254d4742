// Package server initializes and runs the vault server: database and
// migrations, the Redis cache, the field cipher, the domain services,
// the audit outbox worker, and the HTTP endpoint with graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/zecrypt/vault/internal/fieldcipher"
	"github.com/zecrypt/vault/internal/logging"
	"github.com/zecrypt/vault/internal/server/cache"
	"github.com/zecrypt/vault/internal/server/config"
	"github.com/zecrypt/vault/internal/server/httpapi"
	"github.com/zecrypt/vault/internal/server/metrics"
	"github.com/zecrypt/vault/internal/server/repositories/repomanager"
	"github.com/zecrypt/vault/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger

	db    *sql.DB
	cache *cache.Cache

	httpServer *http.Server
	audit      *services.AuditTrail
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	masterKey, err := base64.StdEncoding.DecodeString(cfg.MasterKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("master key decode error: %w", err)
	}
	provider := fieldcipher.NewProvider()
	cipher, err := provider.Cipher("master", masterKey)
	if err != nil {
		return nil, fmt.Errorf("field cipher init error: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	redisCache, err := cache.New(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.ListCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("cache init error: %w", err)
	}

	m := metrics.New()
	jwtSecret := []byte(cfg.SecretKey)

	audit := services.NewAuditTrail(db, rm, logger, m, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	vault := services.NewSecretVault(db, rm, cipher, redisCache, audit, logger, m)
	keys := services.NewIdentityKeyStore(db, rm, logger)
	projKeys := services.NewProjectKeyManager(db, rm, keys, logger)
	twoFactor := services.NewTwoFactorAuthManager(db, rm, cipher, redisCache, logger,
		cfg.TOTPIssuer, jwtSecret,
		cfg.TwoStepTokenValidityDuration, cfg.AccessTokenValidityDuration, cfg.TOTPPendingTTL)

	handler := httpapi.NewServer(vault, keys, projKeys, twoFactor, audit, m, logger, jwtSecret)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		cache:  redisCache,
		audit:  audit,
		httpServer: &http.Server{
			Addr:    cfg.EndpointAddr,
			Handler: handler.Routes(),
		},
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the outbox worker and the HTTP endpoint and blocks until
// the context is cancelled or the listener fails, then shuts down
// gracefully.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting vault server", "addr", app.config.EndpointAddr)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.audit.RunDrainWorker(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error(ctx, "http server failed", "error", err)
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn(shutdownCtx, "http shutdown failed", "error", err)
	}

	wg.Wait()

	if err := app.cache.Close(); err != nil {
		app.logger.Warn(shutdownCtx, "cache close failed", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(shutdownCtx, "db close failed", "error", err)
	}

	app.logger.Info(shutdownCtx, "vault server stopped")
}
