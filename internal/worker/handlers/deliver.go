package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/artifact"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

const deliveryChannel = "telegram"

// Deliver builds the export row for an evaluated submission, saves the CSV
// export, records the delivery, and sends the result notification. Rows are
// only produced when the evaluation carries its full chain metadata and a
// score; anything less means the evaluation stage has not landed yet and the
// claim retries.
func (d Deps) Deliver(ctx context.Context, claim domain.WorkItemClaim) domain.ProcessResult {
	items, err := d.Repo.ListSubmissions(ctx, domain.SubmissionListQuery{
		SubmissionIDs: []string{claim.SubmissionID},
		Include: []domain.FieldGroup{
			domain.FieldGroupCandidate,
			domain.FieldGroupAssignment,
			domain.FieldGroupEvaluation,
		},
		Limit: 1,
	})
	if err != nil {
		return failure(domain.ErrorCodeInternal, "load submission: %v", err)
	}
	if len(items) == 0 || items[0].Candidate == nil || items[0].Assignment == nil {
		return failure(domain.ErrorCodeInternal, "submission %s not found", claim.SubmissionID)
	}
	item := items[0]

	row, ok := exportRow(item)
	if !ok {
		return failure(domain.ErrorCodeArtifactMissing, "evaluation is missing score or chain metadata")
	}

	exportID := domain.NewExportPublicID()
	ref, err := d.Artifacts.SaveExportRows(ctx, exportID, []artifact.ExportRowArtifact{row})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return failure(domain.ErrorCodeSchemaValidationFailed, "export row rejected: %v", err)
		}
		return failure(domain.ErrorCodeInternal, "save export rows: %v", err)
	}

	message := fmt.Sprintf("Your assignment has been evaluated: %d/10.", row.Score1To10)
	messageID, err := d.Telegram.SendResultNotification(ctx, claim.SubmissionID, message)
	if err != nil {
		code := string(domain.ErrorCodeDeliveryTransportFailed)
		_ = d.Repo.PersistDelivery(ctx, domain.DeliveryRecord{
			SubmissionID:  claim.SubmissionID,
			Channel:       deliveryChannel,
			Status:        "failed",
			Attempts:      claim.Attempt,
			LastErrorCode: &code,
		})
		return failure(domain.ErrorCodeDeliveryTransportFailed, "send notification: %v", err)
	}

	if err := d.Repo.PersistDelivery(ctx, domain.DeliveryRecord{
		SubmissionID:      claim.SubmissionID,
		Channel:           deliveryChannel,
		Status:            "sent",
		ExternalMessageID: &messageID,
		Attempts:          claim.Attempt,
	}); err != nil {
		return failure(domain.ErrorCodeInternal, "persist delivery: %v", err)
	}

	return domain.ProcessResult{
		Success:         true,
		Detail:          "exported " + exportID + " and notified",
		ArtifactRef:     ref,
		ArtifactVersion: artifact.SchemaExportsV1,
	}
}

// exportRow shapes one export row from a projected submission. It reports
// false when the evaluation or any chain metadata column is missing.
func exportRow(item domain.SubmissionListItem) (artifact.ExportRowArtifact, bool) {
	ev := item.Evaluation
	if ev == nil || ev.Score1To10 == nil ||
		ev.ChainVersion == nil || ev.SpecVersion == nil ||
		ev.Model == nil || ev.ResponseLanguage == nil {
		return artifact.ExportRowArtifact{}, false
	}
	return artifact.ExportRowArtifact{
		CandidateIdentifier:  item.Candidate.PublicID,
		AssignmentIdentifier: item.Assignment.PublicID,
		Score1To10:           *ev.Score1To10,
		CriteriaSummary:      criteriaSummary(ev.CriteriaScores),
		Strengths:            joinFeedback(ev.OrganizerFeedback, "strengths"),
		Issues:               joinFeedback(ev.OrganizerFeedback, "issues"),
		Recommendations:      joinFeedback(ev.OrganizerFeedback, "recommendations"),
		ChainVersion:         *ev.ChainVersion,
		Model:                *ev.Model,
		SpecVersion:          *ev.SpecVersion,
		ResponseLanguage:     *ev.ResponseLanguage,
		SchemaVersion:        artifact.SchemaExportsV1,
	}, true
}

// criteriaSummary renders "id=score" pairs in stable order. Keys with an
// underscore prefix are bookkeeping, not criteria.
func criteriaSummary(criteria map[string]any) string {
	ids := make([]string, 0, len(criteria))
	for id := range criteria {
		if strings.HasPrefix(id, "_") {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		entry := asMap(criteria[id])
		parts = append(parts, fmt.Sprintf("%s=%d", id, int(asFloat(entry["score"]))))
	}
	return strings.Join(parts, "; ")
}

func joinFeedback(feedback map[string]any, key string) string {
	items, _ := feedback[key].([]any)
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "; ")
}
