package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

var includableGroups = map[string]domain.FieldGroup{
	"candidate":  domain.FieldGroupCandidate,
	"assignment": domain.FieldGroupAssignment,
	"source":     domain.FieldGroupSource,
	"evaluation": domain.FieldGroupEvaluation,
	"ops":        domain.FieldGroupOps,
}

var sortableColumns = map[string]domain.SortBy{
	"created_at": domain.SortByCreatedAt,
	"updated_at": domain.SortByUpdatedAt,
	"score_1_10": domain.SortByScore,
	"status":     domain.SortByStatus,
}

// ListSubmissionsHandler maps query parameters onto the projection query and
// shapes the result rows.
func (s *Server) ListSubmissionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := parseListQuery(r.URL.Query())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		items, err := s.Repo.ListSubmissions(r.Context(), query)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			out = append(out, shapeListItem(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items":  out,
			"limit":  query.Limit,
			"offset": query.Offset,
		})
	}
}

// GetSubmissionHandler returns the full submission snapshot.
func (s *Server) GetSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !domain.HasPublicIDPrefix(id, "sub") {
			writeError(w, r, fmt.Errorf("id must be a sub_ public id: %w", domain.ErrValidation), nil)
			return
		}
		snap, err := s.Repo.GetSubmission(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if snap == nil {
			writeError(w, r, fmt.Errorf("submission %q: %w", id, domain.ErrNotFound), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"submission_id": snap.SubmissionID,
			"candidate_id":  snap.CandidatePublicID,
			"assignment_id": snap.AssignmentPublicID,
			"status":        string(snap.Status),
			"attempts": map[string]int{
				"telegram_ingest": snap.AttemptTelegramIngest,
				"normalization":   snap.AttemptNormalization,
				"evaluation":      snap.AttemptEvaluation,
				"delivery":        snap.AttemptDelivery,
			},
			"claimed_by":         snap.ClaimedBy,
			"lease_expires_at":   snap.LeaseExpiresAt,
			"last_error_code":    snap.LastErrorCode,
			"last_error_message": snap.LastErrorMessage,
			"created_at":         snap.CreatedAt,
			"updated_at":         snap.UpdatedAt,
		})
	}
}

func parseListQuery(values url.Values) (domain.SubmissionListQuery, error) {
	var query domain.SubmissionListQuery
	fail := func(format string, args ...any) (domain.SubmissionListQuery, error) {
		return query, fmt.Errorf(format+": %w", append(args, domain.ErrValidation)...)
	}

	for _, raw := range values["status"] {
		state := domain.State(raw)
		if !domain.IsValidState(state) {
			return fail("unknown status %q", raw)
		}
		query.Statuses = append(query.Statuses, state)
	}
	query.SubmissionIDs = values["id"]
	query.CandidatePublicID = values.Get("candidate_id")
	query.AssignmentPublicID = values.Get("assignment_id")
	query.SourceType = values.Get("source_type")

	if raw := values.Get("has_error"); raw != "" {
		hasError, err := strconv.ParseBool(raw)
		if err != nil {
			return fail("has_error must be a boolean")
		}
		query.HasError = &hasError
	}
	for name, dst := range map[string]**time.Time{"created_from": &query.CreatedFrom, "created_to": &query.CreatedTo} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fail("%s must be RFC3339", name)
		}
		*dst = &ts
	}

	if raw := values.Get("include"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			group, ok := includableGroups[strings.TrimSpace(name)]
			if !ok {
				return fail("unknown include group %q", name)
			}
			query.Include = append(query.Include, group)
		}
	}

	if raw := values.Get("sort_by"); raw != "" {
		col, ok := sortableColumns[raw]
		if !ok {
			return fail("unknown sort_by %q", raw)
		}
		query.SortBy = col
	}
	switch raw := values.Get("sort_order"); raw {
	case "", "asc":
	case "desc":
		query.SortOrder = domain.SortDesc
	default:
		return fail("sort_order must be asc or desc")
	}

	for name, dst := range map[string]*int{"limit": &query.Limit, "offset": &query.Offset} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fail("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return query, nil
}

func shapeListItem(item domain.SubmissionListItem) map[string]any {
	out := map[string]any{
		"submission_id": item.Core.PublicID,
		"status":        string(item.Core.Status),
		"created_at":    item.Core.CreatedAt,
		"updated_at":    item.Core.UpdatedAt,
	}
	if item.Candidate != nil {
		out["candidate"] = map[string]any{"candidate_id": item.Candidate.PublicID}
	}
	if item.Assignment != nil {
		out["assignment"] = map[string]any{"assignment_id": item.Assignment.PublicID}
	}
	if item.Source != nil {
		out["source"] = map[string]any{
			"type":        item.Source.Type,
			"external_id": item.Source.ExternalID,
		}
	}
	if item.Evaluation != nil {
		out["evaluation"] = map[string]any{
			"score_1_10":         item.Evaluation.Score1To10,
			"criteria_scores":    item.Evaluation.CriteriaScores,
			"organizer_feedback": item.Evaluation.OrganizerFeedback,
			"candidate_feedback": item.Evaluation.CandidateFeedback,
			"chain_version":      item.Evaluation.ChainVersion,
			"model":              item.Evaluation.Model,
			"spec_version":       item.Evaluation.SpecVersion,
			"response_language":  item.Evaluation.ResponseLanguage,
		}
	}
	if item.Ops != nil {
		out["ops"] = map[string]any{
			"last_error_code":    item.Ops.LastErrorCode,
			"last_error_message": item.Ops.LastErrorMessage,
		}
	}
	return out
}
