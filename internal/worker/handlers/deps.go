// Package handlers implements the four stage process functions: ingest
// fetched Telegram files into raw storage, normalize raw payloads into
// canonical markdown, evaluate normalized content through the chain spec,
// and deliver export rows plus the result notification. Handlers never touch
// submission state directly; outcomes travel back as process results and the
// worker loop routes them through the retry taxonomy.
package handlers

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/artifact"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/chain"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/worker"
)

// Deps carries the collaborators shared by all stage handlers. Provider and
// APIBase feed llm_run accounting only.
type Deps struct {
	Repo      domain.WorkRepository
	Storage   domain.StorageClient
	Artifacts artifact.Repository
	Telegram  domain.TelegramClient
	LLM       domain.LLMClient
	Chain     *chain.Spec

	Provider string
	APIBase  string
}

// ForRole returns the process function driving the given worker role.
func (d Deps) ForRole(role string) (worker.ProcessFunc, error) {
	switch role {
	case domain.RoleIngestTelegram:
		return d.IngestTelegram, nil
	case domain.RoleNormalize:
		return d.Normalize, nil
	case domain.RoleEvaluate:
		return d.Evaluate, nil
	case domain.RoleDeliver:
		return d.Deliver, nil
	}
	return nil, fmt.Errorf("op=handlers.ForRole: no handler for role %q: %w", role, domain.ErrValidation)
}

// submissionSource resolves the ingress source row for a submission,
// including its metadata.
func (d Deps) submissionSource(ctx context.Context, submissionID string) (*domain.SubmissionSourceSnapshot, error) {
	items, err := d.Repo.ListSubmissions(ctx, domain.SubmissionListQuery{
		SubmissionIDs: []string{submissionID},
		Include:       []domain.FieldGroup{domain.FieldGroupSource},
		Limit:         1,
	})
	if err != nil {
		return nil, fmt.Errorf("op=handlers.submissionSource: %w", err)
	}
	if len(items) == 0 || items[0].Source == nil {
		return nil, fmt.Errorf("op=handlers.submissionSource: submission %s has no source: %w", submissionID, domain.ErrNotFound)
	}
	source, err := d.Repo.FindSubmissionSource(ctx, items[0].Source.Type, items[0].Source.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("op=handlers.submissionSource: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("op=handlers.submissionSource: source row for %s is gone: %w", submissionID, domain.ErrNotFound)
	}
	return source, nil
}

func failure(code domain.ErrorCode, format string, args ...any) domain.ProcessResult {
	return domain.ProcessResult{
		Success:   false,
		Detail:    fmt.Sprintf(format, args...),
		ErrorCode: code,
	}
}
