package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lorenzopantano/orbvision/internal/api"
	"github.com/lorenzopantano/orbvision/internal/catalog"
	"github.com/lorenzopantano/orbvision/internal/config"
	"github.com/lorenzopantano/orbvision/internal/logging"
	"github.com/lorenzopantano/orbvision/internal/tle"
)

func main() {
	configPath := flag.String("config", os.Getenv("ORBVISION_CONFIG"), "optional YAML config file")
	flag.Parse()

	// Config warnings are logged before the configured logger exists.
	bootLogger := logging.New(os.Stdout, "info", "json")

	cfg, err := config.Load(*configPath, bootLogger)
	if err != nil {
		bootLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	fetcher := tle.NewFetcher(cfg.Catalog.BaseURL, logger,
		tle.WithTimeout(cfg.Catalog.Timeout),
		tle.WithMaxBodyBytes(cfg.Catalog.MaxBodyBytes),
		tle.WithUserAgent(cfg.Catalog.UserAgent),
	)
	svc := catalog.NewService(fetcher, cfg.Cache, logger)

	srv := api.NewServer(api.Config{
		Addr:         cfg.HTTP.Addr,
		Auth:         cfg.Auth,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		TrustProxy:   cfg.HTTP.TrustProxy,
		WriteTimeout: cfg.Catalog.Timeout + 15*time.Second,

		MaxInflightPerIP: cfg.HTTP.MaxInflightPerIP,
		MaxInflightTotal: cfg.HTTP.MaxInflightTotal,
	}, svc, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTP.Addr,
			"auth_enabled", cfg.Auth.Enabled,
			"catalog_base_url", fetcher.BaseURL(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped", "cached_responses", svc.CachedResponses())
}

