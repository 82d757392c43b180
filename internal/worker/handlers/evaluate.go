package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// Evaluate runs the chain spec over the normalized artifact: render prompts,
// call the model transport, validate the reply shape, score
// deterministically, and persist the evaluation with its run metadata. The
// raw model reply is kept under eval/ for audit.
func (d Deps) Evaluate(ctx context.Context, claim domain.WorkItemClaim) domain.ProcessResult {
	normRef, err := d.Repo.GetArtifactRef(ctx, claim.SubmissionID, domain.StageNormalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure(domain.ErrorCodeArtifactMissing, "no normalized artifact linked")
		}
		return failure(domain.ErrorCodeInternal, "resolve normalized artifact: %v", err)
	}
	normalized, err := d.Artifacts.LoadNormalized(ctx, normRef)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return failure(domain.ErrorCodeArtifactMissing, "normalized artifact %s not in storage", normRef)
		case errors.Is(err, domain.ErrValidation):
			return failure(domain.ErrorCodeSchemaValidationFailed, "normalized artifact rejected: %v", err)
		}
		return failure(domain.ErrorCodeInternal, "load normalized artifact: %v", err)
	}

	userPrompt, err := d.Chain.RenderUserPrompt(map[string]any{
		"assignment_title": d.assignmentTitle(ctx, normalized.AssignmentPublicID),
		"content_markdown": normalized.ContentMarkdown,
	})
	if err != nil {
		return failure(domain.ErrorCodeValidation, "render user prompt: %v", err)
	}

	result, err := d.LLM.Evaluate(ctx, domain.LLMClientRequest{
		SystemPrompt:     d.Chain.Prompts.System,
		UserPrompt:       userPrompt,
		Model:            d.Chain.Model,
		Temperature:      d.Chain.Runtime.Temperature,
		Seed:             d.Chain.Runtime.Seed,
		ResponseLanguage: d.Chain.Runtime.ResponseLanguage,
	})
	if err != nil {
		return failure(domain.ErrorCodeLLMProviderUnavailable, "model call failed: %v", err)
	}

	reply := result.RawJSON
	if reply == nil {
		if err := json.Unmarshal([]byte(result.RawText), &reply); err != nil {
			return failure(domain.ErrorCodeSchemaValidationFailed, "model reply is not JSON: %v", err)
		}
	}
	if err := d.Chain.ValidateResponse(reply); err != nil {
		return failure(domain.ErrorCodeSchemaValidationFailed, "model reply rejected: %v", err)
	}

	criteria, criteriaPayload := d.criteriaFromReply(reply)
	score := domain.DeterministicScore(criteria)

	assistance := asMap(reply["ai_assistance"])
	record := domain.EvaluationRecord{
		SubmissionID:      claim.SubmissionID,
		Score1To10:        score,
		CriteriaScores:    criteriaPayload,
		OrganizerFeedback: asMap(reply["organizer_feedback"]),
		CandidateFeedback: asMap(reply["candidate_feedback"]),
		AILikelihood:      asFloat(assistance["likelihood"]),
		AIConfidence:      asFloat(assistance["confidence"]),
		ReproducibilitySubset: map[string]string{
			"chain_version":     d.Chain.ChainVersion,
			"spec_version":      d.Chain.SpecVersion,
			"model":             d.Chain.Model,
			"response_language": d.Chain.Runtime.ResponseLanguage,
		},
	}
	if err := d.Repo.PersistEvaluation(ctx, record); err != nil {
		return failure(domain.ErrorCodeInternal, "persist evaluation: %v", err)
	}
	if err := d.Repo.PersistLLMRun(ctx, domain.LLMRunRecord{
		SubmissionID:     claim.SubmissionID,
		Provider:         d.Provider,
		Model:            d.Chain.Model,
		APIBase:          d.APIBase,
		ChainVersion:     d.Chain.ChainVersion,
		SpecVersion:      d.Chain.SpecVersion,
		ResponseLanguage: d.Chain.Runtime.ResponseLanguage,
		Temperature:      d.Chain.Runtime.Temperature,
		Seed:             d.Chain.Runtime.Seed,
		TokensInput:      result.TokensInput,
		TokensOutput:     result.TokensOutput,
		LatencyMS:        result.LatencyMS,
	}); err != nil {
		return failure(domain.ErrorCodeInternal, "persist llm run: %v", err)
	}

	ref, err := d.Storage.PutBytes(ctx, fmt.Sprintf("eval/%s.json", claim.SubmissionID), []byte(result.RawText))
	if err != nil {
		return failure(domain.ErrorCodeInternal, "store raw model reply: %v", err)
	}

	return domain.ProcessResult{
		Success:     true,
		Detail:      fmt.Sprintf("scored %d/10 by %s", score, d.Chain.Model),
		ArtifactRef: ref,
	}
}

// criteriaFromReply matches reply criteria against the rubric weights and
// shapes the persisted criteria payload. Criteria the rubric does not know
// carry weight 1 so a drifting reply still scores.
func (d Deps) criteriaFromReply(reply map[string]any) ([]domain.CriterionScore, map[string]any) {
	weights := make(map[string]float64, len(d.Chain.Rubric.Criteria))
	for _, c := range d.Chain.Rubric.Criteria {
		weights[c.ID] = c.Weight
	}

	items, _ := reply["criteria"].([]any)
	scores := make([]domain.CriterionScore, 0, len(items))
	payload := make(map[string]any, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := entry["id"].(string)
		if id == "" {
			continue
		}
		weight, known := weights[id]
		if !known {
			weight = 1
		}
		score := int(asFloat(entry["score"]))
		scores = append(scores, domain.CriterionScore{Name: id, Score: score, Weight: weight})
		payload[id] = map[string]any{
			"score":  score,
			"reason": entry["reason"],
			"weight": weight,
		}
	}
	return scores, payload
}

func (d Deps) assignmentTitle(ctx context.Context, assignmentPublicID string) string {
	assignments, err := d.Repo.ListAssignments(ctx, false)
	if err == nil {
		for _, a := range assignments {
			if a.AssignmentPublicID == assignmentPublicID {
				return a.Title
			}
		}
	}
	return assignmentPublicID
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
