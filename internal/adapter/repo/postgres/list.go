package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// listPlan is a built projection query: the SQL, its args, and which field
// groups the scan loop must consume. Column order is fixed by group order.
type listPlan struct {
	sql  string
	args []any

	candidate  bool
	assignment bool
	source     bool
	evaluation bool
	ops        bool
}

// buildListQuery assembles the dynamic projection for a normalized query.
// Joins are added only when a group or filter needs them; the evaluation
// group joins the latest model run laterally for chain metadata.
func buildListQuery(q domain.SubmissionListQuery) listPlan {
	plan := listPlan{
		candidate:  q.Includes(domain.FieldGroupCandidate),
		assignment: q.Includes(domain.FieldGroupAssignment),
		source:     q.Includes(domain.FieldGroupSource),
		evaluation: q.Includes(domain.FieldGroupEvaluation),
		ops:        q.Includes(domain.FieldGroupOps),
	}

	cols := []string{"s.id", "s.public_id", "s.status", "s.created_at", "s.updated_at"}
	if plan.candidate {
		cols = append(cols, "c.public_id")
	}
	if plan.assignment {
		cols = append(cols, "a.public_id")
	}
	if plan.source {
		cols = append(cols, "ss.source_type", "ss.source_external_id")
	}
	if plan.evaluation {
		cols = append(cols,
			"e.score_1_10", "e.criteria_scores", "e.organizer_feedback", "e.candidate_feedback",
			"lr.chain_version", "lr.model", "lr.spec_version", "lr.response_language")
	}
	if plan.ops {
		cols = append(cols, "s.last_error_code", "s.last_error_message")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM submissions s")

	needCandidateJoin := plan.candidate || q.CandidatePublicID != ""
	needAssignmentJoin := plan.assignment || q.AssignmentPublicID != ""
	needSourceJoin := plan.source || q.SourceType != ""
	needEvalJoin := plan.evaluation || q.SortBy == domain.SortByScore

	if needCandidateJoin {
		b.WriteString(" JOIN candidates c ON c.id = s.candidate_id")
	}
	if needAssignmentJoin {
		b.WriteString(" JOIN assignments a ON a.id = s.assignment_id")
	}
	if needSourceJoin {
		b.WriteString(" LEFT JOIN submission_sources ss ON ss.submission_id = s.id")
	}
	if needEvalJoin {
		b.WriteString(" LEFT JOIN evaluations e ON e.submission_id = s.id")
	}
	if plan.evaluation {
		b.WriteString(" LEFT JOIN LATERAL (" +
			"SELECT chain_version, model, spec_version, response_language" +
			" FROM llm_runs WHERE submission_id = s.id ORDER BY id DESC LIMIT 1" +
			") lr ON true")
	}

	var conds []string
	arg := func(v any) string {
		plan.args = append(plan.args, v)
		return fmt.Sprintf("$%d", len(plan.args))
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, "s.status = ANY("+arg(statuses)+")")
	}
	if len(q.SubmissionIDs) > 0 {
		conds = append(conds, "s.public_id = ANY("+arg(q.SubmissionIDs)+")")
	}
	if q.CandidatePublicID != "" {
		conds = append(conds, "c.public_id = "+arg(q.CandidatePublicID))
	}
	if q.AssignmentPublicID != "" {
		conds = append(conds, "a.public_id = "+arg(q.AssignmentPublicID))
	}
	if q.SourceType != "" {
		conds = append(conds, "ss.source_type = "+arg(q.SourceType))
	}
	if q.HasError != nil {
		if *q.HasError {
			conds = append(conds, "s.last_error_code IS NOT NULL")
		} else {
			conds = append(conds, "s.last_error_code IS NULL")
		}
	}
	if q.CreatedFrom != nil {
		conds = append(conds, "s.created_at >= "+arg(*q.CreatedFrom))
	}
	if q.CreatedTo != nil {
		conds = append(conds, "s.created_at <= "+arg(*q.CreatedTo))
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	sortCol := "s.created_at"
	switch q.SortBy {
	case domain.SortByUpdatedAt:
		sortCol = "s.updated_at"
	case domain.SortByScore:
		sortCol = "COALESCE(e.score_1_10, 0)"
	case domain.SortByStatus:
		sortCol = "s.status"
	}
	dir := "ASC"
	if q.SortOrder == domain.SortDesc {
		dir = "DESC"
	}
	b.WriteString(" ORDER BY " + sortCol + " " + dir + ", s.id ASC")
	b.WriteString(" LIMIT " + arg(q.Limit) + " OFFSET " + arg(q.Offset))

	plan.sql = b.String()
	return plan
}

// ListSubmissions filters, sorts, projects, and pages submissions.
func (r *WorkRepo) ListSubmissions(ctx context.Context, query domain.SubmissionListQuery) ([]domain.SubmissionListItem, error) {
	tracer := otel.Tracer("repo.work")
	ctx, span := tracer.Start(ctx, "work.ListSubmissions")
	defer span.End()

	plan := buildListQuery(query.Normalize())
	rows, err := r.Pool.Query(ctx, plan.sql, plan.args...)
	if err != nil {
		return nil, fmt.Errorf("op=work.list_submissions: %w", err)
	}
	defer rows.Close()

	out := []domain.SubmissionListItem{}
	for rows.Next() {
		var item domain.SubmissionListItem
		dest := []any{&item.ID, &item.Core.PublicID, &item.Core.Status, &item.Core.CreatedAt, &item.Core.UpdatedAt}

		var candidateID, assignmentID string
		if plan.candidate {
			dest = append(dest, &candidateID)
		}
		if plan.assignment {
			dest = append(dest, &assignmentID)
		}
		var sourceType, sourceExternalID *string
		if plan.source {
			dest = append(dest, &sourceType, &sourceExternalID)
		}
		var score *int
		var criteriaJSON, organizerJSON, candidateJSON []byte
		var chainVersion, model, specVersion, responseLanguage *string
		if plan.evaluation {
			dest = append(dest, &score, &criteriaJSON, &organizerJSON, &candidateJSON,
				&chainVersion, &model, &specVersion, &responseLanguage)
		}
		var lastErrorCode, lastErrorMessage *string
		if plan.ops {
			dest = append(dest, &lastErrorCode, &lastErrorMessage)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("op=work.list_submissions: %w", err)
		}

		if plan.candidate {
			item.Candidate = &domain.SubmissionListCandidate{PublicID: candidateID}
		}
		if plan.assignment {
			item.Assignment = &domain.SubmissionListAssignment{PublicID: assignmentID}
		}
		if plan.source && sourceType != nil {
			item.Source = &domain.SubmissionListSource{Type: *sourceType}
			if sourceExternalID != nil {
				item.Source.ExternalID = *sourceExternalID
			}
		}
		if plan.evaluation {
			ev := &domain.SubmissionListEvaluation{
				Score1To10:       score,
				ChainVersion:     chainVersion,
				Model:            model,
				SpecVersion:      specVersion,
				ResponseLanguage: responseLanguage,
			}
			if len(criteriaJSON) > 0 {
				if err := json.Unmarshal(criteriaJSON, &ev.CriteriaScores); err != nil {
					return nil, fmt.Errorf("op=work.list_submissions: %w", err)
				}
			}
			if len(organizerJSON) > 0 {
				if err := json.Unmarshal(organizerJSON, &ev.OrganizerFeedback); err != nil {
					return nil, fmt.Errorf("op=work.list_submissions: %w", err)
				}
			}
			if len(candidateJSON) > 0 {
				if err := json.Unmarshal(candidateJSON, &ev.CandidateFeedback); err != nil {
					return nil, fmt.Errorf("op=work.list_submissions: %w", err)
				}
			}
			item.Evaluation = ev
		}
		if plan.ops {
			item.Ops = &domain.SubmissionListOps{LastErrorCode: lastErrorCode, LastErrorMessage: lastErrorMessage}
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=work.list_submissions: %w", err)
	}
	return out, nil
}
