// Command server starts the assignment evaluator HTTP ingress.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpserver "github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/storage"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/config"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so /metrics exposes
	// HTTP, worker, and pipeline instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	if cfg.Role != domain.RoleAPI {
		slog.Warn("server binary ignores APP_ROLE", slog.String("role", cfg.Role))
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}

	repo := &postgres.WorkRepo{Pool: pool}
	if cfg.IsDev() {
		seedDefaultAssignment(ctx, repo)
	}

	// The object store stub keeps raw payloads in process; a real store
	// plugs in behind the same port.
	store := storage.NewMemoryStore()
	dbCheck := func(ctx context.Context) error { return pool.Ping(ctx) }

	srv := httpserver.NewServer(cfg, repo, store, dbCheck)
	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
