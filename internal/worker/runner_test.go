package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/repo/memory"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/worker"
)

func fastSettings() worker.Settings {
	return worker.Settings{
		PollInterval:      time.Millisecond,
		IdleBackoff:       time.Millisecond,
		ErrorBackoff:      time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
		LeaseSeconds:      30,
	}
}

func TestRunnerProcessesUntilStopped(t *testing.T) {
	repo := memory.New()
	id := seedSubmission(t, repo, "up:1", domain.StateUploaded)

	runner := &worker.Runner{
		Loop: &worker.Loop{
			Role:  "worker-normalize",
			Stage: domain.StageNormalized,
			Repo:  repo,
			Process: func(context.Context, domain.WorkItemClaim) domain.ProcessResult {
				return domain.ProcessResult{Success: true}
			},
		},
		Settings: fastSettings(),
		RunID:    "run-test",
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		snap, err := repo.GetSubmission(context.Background(), id)
		return err == nil && snap.Status == domain.StateNormalized
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}

	state := runner.StateSnapshot()
	assert.True(t, state.Started)
	assert.True(t, state.Stopped)
	assert.GreaterOrEqual(t, state.Claims, int64(1))
	assert.GreaterOrEqual(t, state.Ticks, state.Claims)
}

func TestRunnerCountsIdleAndErrorTicks(t *testing.T) {
	repo := memory.New()
	// Empty queue: every tick is idle.
	runner := &worker.Runner{
		Loop: &worker.Loop{
			Role:  "worker-normalize",
			Stage: domain.StageNormalized,
			Repo:  repo,
			Process: func(context.Context, domain.WorkItemClaim) domain.ProcessResult {
				return domain.ProcessResult{Success: true}
			},
		},
		Settings: fastSettings(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	runner.Run(ctx)

	state := runner.StateSnapshot()
	assert.Zero(t, state.Claims)
	assert.GreaterOrEqual(t, state.IdleTicks, int64(1))
	assert.Equal(t, state.Ticks, state.IdleTicks)
}

func TestRunnerReclaimsExpiredLeases(t *testing.T) {
	repo := memory.New()
	id := seedSubmission(t, repo, "up:1", domain.StateUploaded)

	// Orphan a claim: claim directly with an already-expired lease.
	now := time.Now().UTC()
	repo.SetNowFunc(func() time.Time { return now })
	_, err := repo.ClaimNext(context.Background(), domain.StageNormalized, "dead-worker", 1)
	require.NoError(t, err)
	repo.SetNowFunc(func() time.Time { return now.Add(5 * time.Second) })

	runner := &worker.Runner{
		Loop: &worker.Loop{
			Role:  "worker-normalize",
			Stage: domain.StageNormalized,
			Repo:  repo,
			Process: func(context.Context, domain.WorkItemClaim) domain.ProcessResult {
				return domain.ProcessResult{Success: true}
			},
		},
		Settings: fastSettings(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	// The reclaimer routes the orphan back, then the loop claims and
	// completes it.
	require.Eventually(t, func() bool {
		snap, err := repo.GetSubmission(context.Background(), id)
		return err == nil && snap.Status == domain.StateNormalized
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRunnerStateSnapshotConcurrentWithRun(t *testing.T) {
	repo := memory.New()
	runner := &worker.Runner{
		Loop: &worker.Loop{
			Role:  "worker-normalize",
			Stage: domain.StageNormalized,
			Repo:  repo,
			Process: func(context.Context, domain.WorkItemClaim) domain.ProcessResult {
				return domain.ProcessResult{Success: true}
			},
		},
		Settings: fastSettings(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	// Poll the counters the way a liveness probe would while ticks are
	// running; the race detector flags any unsynchronized access.
	require.Eventually(t, func() bool {
		state := runner.StateSnapshot()
		return state.Started && state.Ticks >= 2
	}, time.Second, time.Millisecond)

	cancel()
	<-done
	state := runner.StateSnapshot()
	assert.True(t, state.Stopped)
	assert.Equal(t, state.Ticks, state.IdleTicks)
}
