package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httphandler "github.com/ericfisherdev/modeldesk/internal/adapter/driving/http"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the JSON API under /api/v1 and Prometheus metrics under /metrics.
Remote settings changes are watched until the process receives SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, runServe)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	logger := a.logger
	logger.Info("config loaded",
		"listen_addr", a.cfg.ListenAddr,
		"db_path", a.cfg.DBPath,
		"account", a.cfg.Account,
		"remote_settings", a.cfg.HasRemoteSettings(),
		"catalog_ttl", a.cfg.CatalogTTL,
	)

	if err := a.settings.Synchronize(ctx); err != nil {
		logger.Warn("initial settings sync failed", "error", err)
	}

	metricsHandler := promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	apiHandler := httphandler.NewHandler(a.settings, a.credentials, a.resolver, a.catalog, metricsHandler, logger)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      a.cfg.IssueTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server starting", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.settings.Watch(gctx)
	})
	g.Go(func() error {
		return a.resolver.Watch(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	logger.Info("modeldesk started", "listen_addr", a.cfg.ListenAddr)

	err := g.Wait()
	logger.Info("shutdown complete")
	return err
}
