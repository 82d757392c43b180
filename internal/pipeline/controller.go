// Package pipeline provides the synchronous in-process harness that drives
// submissions through every stage without the poll loops. Single-process
// deployments and the end-to-end tests use it; production roles run the
// worker runner instead.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/worker"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/worker/handlers"
)

// stageRoles walks the pipeline in processing order.
var stageRoles = []string{
	domain.RoleIngestTelegram,
	domain.RoleNormalize,
	domain.RoleEvaluate,
	domain.RoleDeliver,
}

// Controller sweeps all stages synchronously, claiming through the same
// repository path the runners use. Retry and dead-letter routing therefore
// behave exactly as under the poll loops.
type Controller struct {
	Deps     handlers.Deps
	WorkerID string

	loops []*worker.Loop
}

// NewController wires one loop per stage.
func NewController(deps handlers.Deps, workerID string) (*Controller, error) {
	if workerID == "" {
		workerID = "pipeline"
	}
	c := &Controller{Deps: deps, WorkerID: workerID}
	for _, role := range stageRoles {
		process, err := deps.ForRole(role)
		if err != nil {
			return nil, fmt.Errorf("op=pipeline.NewController: %w", err)
		}
		stage, ok := domain.StageForRole(role)
		if !ok {
			return nil, fmt.Errorf("op=pipeline.NewController: role %s has no stage: %w", role, domain.ErrInternal)
		}
		c.loops = append(c.loops, &worker.Loop{
			Role:    workerID + "-" + role,
			Stage:   stage,
			Repo:    deps.Repo,
			Process: process,
		})
	}
	return c, nil
}

// Sweep runs each stage until its queue is empty, in pipeline order, and
// reports how many claims were processed. Lease losses cannot happen here
// (no concurrent claimants) but are tolerated as a no-op.
func (c *Controller) Sweep(ctx context.Context) (int, error) {
	processed := 0
	for _, loop := range c.loops {
		for {
			didWork, err := loop.RunOnce(ctx)
			if err != nil {
				if errors.Is(err, domain.ErrLeaseLost) {
					continue
				}
				return processed, fmt.Errorf("op=pipeline.Sweep: stage %s: %w", loop.Stage, err)
			}
			if !didWork {
				break
			}
			processed++
		}
	}
	return processed, nil
}

// Drain sweeps until a full pass finds no work, so retried submissions reach
// a terminal or parked state. Returns the total claims processed.
func (c *Controller) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		processed, err := c.Sweep(ctx)
		total += processed
		if err != nil {
			return total, err
		}
		if processed == 0 {
			return total, nil
		}
	}
}
