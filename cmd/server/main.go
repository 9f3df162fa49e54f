package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/foodops/internal/bootstrap"
	"github.com/JonMunkholm/foodops/internal/config"
	"github.com/JonMunkholm/foodops/internal/core"
	_ "github.com/JonMunkholm/foodops/internal/core/kinds" // Register import kinds
	"github.com/JonMunkholm/foodops/internal/logging"
	"github.com/JonMunkholm/foodops/internal/web"
)

func main() {
	// Overload lets a local .env win over the shell environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"catalog_backend", cfg.Database.Backend,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"duplicate_mode", cfg.Import.DuplicateMode,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	cat, closeCatalog, err := bootstrap.OpenCatalog(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open catalog", "error", err)
		os.Exit(1)
	}
	defer closeCatalog()

	service, err := bootstrap.NewService(cat, cfg)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	kinds := core.All()
	slog.Info("import kinds registered", "count", len(kinds))
	for _, def := range kinds {
		slog.Debug("import kind", "key", def.Info.Key, "fields", len(def.Fields))
	}

	server := web.NewServer(service, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartSessionJanitor(jobCtx, cfg.Upload.JanitorInterval)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight parses finish before closing connections.
		if status := service.UploadLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
			if err := service.WaitForUploads(shutdownCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			} else {
				slog.Info("all uploads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		closeCatalog()
		os.Exit(1)
	}
	// Start returns as soon as Shutdown begins; wait for it to finish.
	<-done
	slog.Info("server stopped")
}
