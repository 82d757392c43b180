package main

import (
	"context"
	"log/slog"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// seedDefaultAssignment makes sure a dev instance has an active assignment
// so webhook submissions have something to attach to. Idempotent: nothing
// happens when any active assignment exists.
func seedDefaultAssignment(ctx context.Context, repo domain.WorkRepository) {
	assignments, err := repo.ListAssignments(ctx, true)
	if err != nil {
		slog.Warn("default assignment check failed", slog.Any("error", err))
		return
	}
	if len(assignments) > 0 {
		return
	}
	asg, err := repo.CreateAssignment(ctx,
		"Default assignment",
		"Auto-created for development. Submissions without an explicit assignment land here.",
		true)
	if err != nil {
		slog.Warn("default assignment seed failed", slog.Any("error", err))
		return
	}
	slog.Info("seeded default assignment", slog.String("assignment_id", asg.AssignmentPublicID))
}
