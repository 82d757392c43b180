package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/config"
)

// Settings are the runner timing knobs.
type Settings struct {
	PollInterval      time.Duration
	IdleBackoff       time.Duration
	ErrorBackoff      time.Duration
	HeartbeatInterval time.Duration
	LeaseSeconds      int
}

// SettingsFromConfig lifts the worker knobs out of the app config.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		PollInterval:      cfg.PollInterval(),
		IdleBackoff:       cfg.IdleBackoff(),
		ErrorBackoff:      cfg.ErrorBackoff(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
		LeaseSeconds:      cfg.ClaimLeaseSeconds(),
	}
}

// State mirrors the liveness counters into a plain struct for tests and the
// readiness probe; the prometheus counters are the exported view.
type State struct {
	Started   bool
	Stopped   bool
	Ticks     int64
	Claims    int64
	IdleTicks int64
	Errors    int64
}

// Runner drives one worker loop until the context is cancelled. Every tick
// reclaims expired leases for the stage, then runs the loop once. Errors
// back off exponentially from the configured error backoff; success resets.
type Runner struct {
	Loop     *Loop
	Settings Settings
	Logger   *slog.Logger
	RunID    string

	mu    sync.Mutex
	state State
}

// StateSnapshot returns a copy of the liveness counters. Safe to call from a
// probe goroutine while Run is ticking.
func (r *Runner) StateSnapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) updateState(fn func(*State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.state)
}

// Run loops until ctx is cancelled, draining the current tick before
// returning.
func (r *Runner) Run(ctx context.Context) {
	stage := string(r.Loop.Stage)
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("role", r.Loop.Role, "run_id", r.RunID, "stage", stage)

	r.Loop.LeaseSeconds = r.Settings.LeaseSeconds
	r.Loop.HeartbeatInterval = r.Settings.HeartbeatInterval

	errBackoff := backoff.NewExponentialBackOff()
	errBackoff.InitialInterval = r.Settings.ErrorBackoff
	errBackoff.MaxInterval = 10 * r.Settings.ErrorBackoff
	errBackoff.MaxElapsedTime = 0
	errBackoff.Reset()

	r.updateState(func(s *State) { s.Started = true })
	logger.Info("worker loop started")

	for ctx.Err() == nil {
		delay := r.Settings.IdleBackoff

		reclaimed, err := r.Loop.Repo.ReclaimExpiredClaims(ctx, r.Loop.Stage)
		if err == nil && reclaimed > 0 {
			observability.WorkerReclaimedTotal.WithLabelValues(stage).Add(float64(reclaimed))
			logger.Info("reclaimed expired claims", "count", reclaimed)
		}
		if err == nil {
			var didWork bool
			didWork, err = r.Loop.RunOnce(ctx)
			if err == nil {
				observability.WorkerTicksTotal.WithLabelValues(stage).Inc()
				if didWork {
					observability.WorkerClaimsTotal.WithLabelValues(stage).Inc()
					delay = r.Settings.PollInterval
				} else {
					observability.WorkerIdleTicksTotal.WithLabelValues(stage).Inc()
				}
				r.updateState(func(s *State) {
					s.Ticks++
					if didWork {
						s.Claims++
					} else {
						s.IdleTicks++
					}
				})
				errBackoff.Reset()
				logger.Debug("worker tick", "did_work", didWork)
			}
		}
		if err != nil && ctx.Err() == nil {
			r.updateState(func(s *State) {
				s.Ticks++
				s.Errors++
			})
			observability.WorkerTicksTotal.WithLabelValues(stage).Inc()
			observability.WorkerErrorsTotal.WithLabelValues(stage).Inc()
			delay = errBackoff.NextBackOff()
			logger.Error("worker tick error", "error", err)
		}

		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}

	r.updateState(func(s *State) { s.Stopped = true })
	logger.Info("worker loop stopped")
}
