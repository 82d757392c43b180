// Command worker runs one stage worker: claim, process, heartbeat, finalize
// in a loop until terminated. APP_ROLE selects the stage.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	aistub "github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/storage"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/telegram"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/artifact"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/chain"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/config"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/worker"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/worker/handlers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	if err := domain.ValidateRole(cfg.Role); err != nil {
		slog.Error("invalid role", slog.Any("error", err))
		os.Exit(1)
	}
	stage, ok := domain.StageForRole(cfg.Role)
	if !ok {
		slog.Error("role drives no stage; use the server binary for the api role", slog.String("role", cfg.Role))
		os.Exit(1)
	}

	// Expose worker metrics on a dedicated endpoint.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	spec, err := chain.LoadSpec(cfg.ChainSpecPath)
	if err != nil {
		slog.Error("chain spec load failed", slog.Any("error", err), slog.String("path", cfg.ChainSpecPath))
		os.Exit(1)
	}

	store := storage.NewMemoryStore()
	artifacts, err := artifact.NewVersionedRepository(store, cfg.ArtifactContractVersion, artifact.CompatPolicy(cfg.ArtifactCompatPolicy))
	if err != nil {
		slog.Error("artifact repository init failed", slog.Any("error", err))
		os.Exit(1)
	}

	deps := handlers.Deps{
		Repo:      &postgres.WorkRepo{Pool: pool},
		Storage:   store,
		Artifacts: artifacts,
		Telegram:  telegram.NewStubClient(),
		LLM:       aistub.New(),
		Chain:     spec,
		Provider:  "stub",
		APIBase:   "stub://local",
	}
	process, err := deps.ForRole(cfg.Role)
	if err != nil {
		slog.Error("handler wiring failed", slog.Any("error", err))
		os.Exit(1)
	}

	runner := &worker.Runner{
		Loop: &worker.Loop{
			Role:    cfg.Role,
			Stage:   stage,
			Repo:    deps.Repo,
			Process: process,
		},
		Settings: worker.SettingsFromConfig(cfg),
		Logger:   logger,
		RunID:    uuid.NewString(),
	}

	slog.Info("worker starting",
		slog.String("role", cfg.Role),
		slog.String("stage", string(stage)),
		slog.String("chain_version", spec.ChainVersion))
	runner.Run(ctx)
	slog.Info("worker stopped")
}
