package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-assignment-evaluator/pkg/textx"
)

type createAssignmentRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=10000"`
	IsActive    *bool  `json:"is_active"`
}

// CreateAssignmentHandler registers a new assignment. Assignments default to
// active.
func (s *Server) CreateAssignmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAssignmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("decode body: %v: %w", err, domain.ErrValidation), nil)
			return
		}
		req.Title = textx.SanitizeText(req.Title)
		req.Description = textx.SanitizeText(req.Description)
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%v: %w", err, domain.ErrValidation), nil)
			return
		}
		isActive := true
		if req.IsActive != nil {
			isActive = *req.IsActive
		}
		asg, err := s.Repo.CreateAssignment(r.Context(), req.Title, req.Description, isActive)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"assignment_id": asg.AssignmentPublicID,
			"title":         asg.Title,
			"description":   asg.Description,
			"is_active":     asg.IsActive,
		})
	}
}

// ListAssignmentsHandler lists assignments, optionally only active ones.
func (s *Server) ListAssignmentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := false
		if raw := r.URL.Query().Get("active"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, r, fmt.Errorf("active must be a boolean: %w", domain.ErrValidation), nil)
				return
			}
			activeOnly = parsed
		}
		assignments, err := s.Repo.ListAssignments(r.Context(), activeOnly)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]map[string]any, 0, len(assignments))
		for _, asg := range assignments {
			out = append(out, map[string]any{
				"assignment_id": asg.AssignmentPublicID,
				"title":         asg.Title,
				"description":   asg.Description,
				"is_active":     asg.IsActive,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out})
	}
}
