package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scriptdesk/internal/config"
	"scriptdesk/internal/handlers"
	"scriptdesk/internal/httpserver"
	"scriptdesk/internal/llm"
	"scriptdesk/internal/metrics"
	"scriptdesk/internal/settings"
	"scriptdesk/internal/version"
	"scriptdesk/pkg/logging"
)

func newServeCmd(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	// ----- Logger -----
	logger, err := logging.NewLogger(logging.Options{Env: cfg.Log.Env, Level: cfg.Log.Level})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("addr", cfg.Addr()),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("settings_backend", cfg.Settings.Backend),
		zap.String("text_url", cfg.Upstream.TextURL),
		zap.String("version", version.String()),
	)

	// ----- Storage -----
	d, err := openDeps(parent, cfg, logger)
	if err != nil {
		logger.Error("storage setup failed", zap.Error(err))
		return err
	}
	defer func() { _ = d.Close() }()

	// ----- Cache -----
	responseCache := newCache(cfg, logger)

	// ----- LLM client -----
	llmClient, err := llm.NewClient(llm.Config{
		TextURL:            cfg.Upstream.TextURL,
		ImageURL:           cfg.Upstream.ImageURL,
		TaskURL:            cfg.Upstream.TaskURL,
		PrimaryImageModel:  cfg.Upstream.PrimaryImageModel,
		FallbackImageModel: cfg.Upstream.FallbackImageModel,
		ImageSize:          cfg.Upstream.ImageSize,
		UpstreamTimeout:    cfg.Upstream.Timeout,
		PollInterval:       cfg.Upstream.PollInterval,
		MaxPollAttempts:    cfg.Upstream.MaxPollAttempts,
	}, d.settings, logger)
	if err != nil {
		return err
	}
	if closer, ok := llmClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Handlers -----
	checks := map[string]handlers.Pinger{"database": d.db}
	if rs, ok := d.settings.(*settings.RedisStore); ok {
		checks["redis"] = rs
	}
	h := httpserver.Handlers{
		Proxy:    handlers.NewProxyHandler(llmClient),
		Scripts:  handlers.NewScriptsHandler(d.db, responseCache),
		Novels:   handlers.NewNovelsHandler(d.db, responseCache),
		Settings: handlers.NewSettingsHandler(d.settings, responseCache),
		System:   handlers.NewSystemHandler(responseCache, checks, cfg.Server.Port),
	}

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, h, httpserver.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		ImageTimeout:   cfg.Server.ImageTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Must outlast the slowest route, image generation.
		WriteTimeout: cfg.Server.ImageTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("starting scriptdesk", zap.String("addr", srv.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ----- Graceful shutdown -----
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
