package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/modeldesk/internal/adapter/driven/keychain"
	"github.com/ericfisherdev/modeldesk/internal/adapter/driven/metrics"
	"github.com/ericfisherdev/modeldesk/internal/adapter/driven/provider"
	"github.com/ericfisherdev/modeldesk/internal/adapter/driven/redisstore"
	sqliteadapter "github.com/ericfisherdev/modeldesk/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/modeldesk/internal/application"
	"github.com/ericfisherdev/modeldesk/internal/config"
	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *sqliteadapter.DB
	redis    *redis.Client
	registry *prometheus.Registry

	settings    *application.SettingsService
	credentials *application.CredentialService
	resolver    *application.ClientResolver
	catalog     *application.CatalogService
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

// openApp opens storage and wires adapters into the application services.
// The caller must Close the returned app.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// 1. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.db = db
	logger.Debug("database opened", "path", db.Path())

	// 2. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db); err != nil {
		_ = a.Close()
		return nil, err
	}
	logger.Debug("migrations complete")

	// 3. Remote settings backend, only when Redis is configured.
	var remote driven.RemoteSettingsStore
	if cfg.HasRemoteSettings() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		remote = redisstore.NewStore(a.redis, cfg.RedisPrefix, logger)
		logger.Debug("remote settings enabled", "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
	} else {
		logger.Debug("no redis configured, settings are local only")
	}

	// 4. Settings and credentials.
	a.settings = application.NewSettingsService(remote, sqliteadapter.NewSettingsRepo(db), logger)

	if !cfg.HasSecretKey() {
		logger.Debug("no secret key configured, local credential tier disabled")
	}
	a.credentials = application.NewCredentialService(
		keychain.NewStore(cfg.KeyringService),
		sqliteadapter.NewCredentialRepo(db, cfg.SecretKey),
		cfg.Account,
		logger,
	)

	// 5. Outbound client resolution.
	a.resolver = application.NewClientResolver(
		a.settings,
		a.credentials,
		application.NewClientProvider(nil, model.EndpointConfig{}),
		provider.Factory(cfg.IssueTimeout, logger),
		cfg.ProviderHost,
		cfg.IssueTimeout,
		logger,
	)

	// 6. Metrics registry and catalog observer.
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer, err := metrics.NewObserver("modeldesk", a.registry)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create catalog metrics: %w", err)
	}

	// 7. Model catalog, cleared whenever the client is invalidated.
	a.catalog = application.NewCatalogService(a.resolver, a.settings, observer, cfg.CatalogTTL, cfg.IssueTimeout, logger)
	a.resolver.OnInvalidate(a.catalog.Clear)

	return a, nil
}

// Close releases the Redis client and the database.
func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
