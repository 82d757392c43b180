// Package worker drives one pipeline stage: the loop claims a submission,
// heartbeats the lease while the process function runs, links any produced
// artifact, and finalizes through the retry policy. The runner schedules the
// loop and reclaims expired leases.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/observability"
)

// ProcessFunc is a stage handler. It may read artifacts and call external
// collaborators but must not touch submission state; retry routing happens
// through the returned result's error code.
type ProcessFunc func(ctx context.Context, claim domain.WorkItemClaim) domain.ProcessResult

// Loop processes one claim per RunOnce call for a single stage.
type Loop struct {
	Role    string
	Stage   domain.Stage
	Repo    domain.WorkRepository
	Process ProcessFunc

	LeaseSeconds      int
	HeartbeatInterval time.Duration
}

func (l *Loop) leaseSeconds() int {
	if l.LeaseSeconds <= 0 {
		return 30
	}
	return l.LeaseSeconds
}

func (l *Loop) heartbeatInterval() time.Duration {
	if l.HeartbeatInterval <= 0 {
		return 10 * time.Second
	}
	return l.HeartbeatInterval
}

// RunOnce claims and processes at most one submission. It reports whether
// work was done. A lease lost mid-processing is an invariant fault: the
// submission is no longer ours, so no finalize is attempted and the
// reclaimer routes it.
func (l *Loop) RunOnce(ctx context.Context) (bool, error) {
	claim, err := l.Repo.ClaimNext(ctx, l.Stage, l.Role, l.leaseSeconds())
	if err != nil {
		return false, fmt.Errorf("op=worker.run_once: %w", err)
	}
	if claim == nil {
		return false, nil
	}

	var leaseLost atomic.Bool
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(l.heartbeatInterval())
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				ok, err := l.Repo.HeartbeatClaim(hbCtx, claim.SubmissionID, l.Stage, l.Role, l.leaseSeconds())
				if err != nil || !ok {
					if hbCtx.Err() == nil {
						leaseLost.Store(true)
					}
					return
				}
			}
		}
	}()

	result := l.Process(ctx, *claim)
	stopHeartbeat()
	wg.Wait()

	if leaseLost.Load() {
		return false, fmt.Errorf("op=worker.run_once: claim on %s: %w", claim.SubmissionID, domain.ErrLeaseLost)
	}

	if result.ArtifactRef != "" {
		if err := l.Repo.LinkArtifact(ctx, claim.SubmissionID, l.Stage, result.ArtifactRef, result.ArtifactVersion); err != nil {
			return false, fmt.Errorf("op=worker.run_once: %w", err)
		}
	}

	errorCode := result.ErrorCode
	if !result.Success {
		errorCode = domain.ResolveStageError(l.Stage, orInternal(errorCode))
		observability.LoggerFromContext(ctx).Warn("stage processing failed",
			"submission_id", claim.SubmissionID,
			"stage", string(l.Stage),
			"last_error_code", string(errorCode),
			"retry_classification", string(domain.ClassifyError(errorCode)),
		)
	}
	if err := l.Repo.Finalize(ctx, claim.SubmissionID, l.Stage, l.Role, result.Success, result.Detail, errorCode); err != nil {
		return false, fmt.Errorf("op=worker.run_once: %w", err)
	}
	return true, nil
}

func orInternal(code domain.ErrorCode) domain.ErrorCode {
	if code == "" {
		return domain.ErrorCodeInternal
	}
	return code
}
