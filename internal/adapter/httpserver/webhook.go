package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-assignment-evaluator/pkg/textx"
)

// telegramUpdate is the subset of the webhook payload the ingress needs.
// Missing file information is accepted here; the ingest stage rejects it
// with a terminal telegram_update_invalid so the update stays auditable.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id" validate:"required,gt=0"`
	Message  struct {
		From struct {
			ID        int64  `json:"id" validate:"required"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"from"`
		Document struct {
			FileID   string `json:"file_id"`
			FileName string `json:"file_name"`
		} `json:"document"`
		Caption string `json:"caption"`
	} `json:"message"`
}

// TelegramWebhookHandler ingests webhook updates idempotently by update_id.
// Replayed updates return the existing submission.
func (s *Server) TelegramWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update telegramUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			writeError(w, r, fmt.Errorf("decode webhook payload: %v: %w", err, domain.ErrValidation), nil)
			return
		}
		if err := getValidator().Struct(update); err != nil {
			writeError(w, r, fmt.Errorf("%v: %w", err, domain.ErrValidation), nil)
			return
		}

		assignmentID, err := s.resolveAssignment(r, update.Message.Caption)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		firstName := textx.SanitizeText(update.Message.From.FirstName)
		if firstName == "" {
			firstName = "Telegram User"
		}
		candidate, err := s.Repo.GetOrCreateCandidateBySource(r.Context(),
			"telegram", strconv.FormatInt(update.Message.From.ID, 10),
			firstName, textx.SanitizeText(update.Message.From.LastName), nil)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		res, err := s.Repo.CreateSubmissionWithSource(r.Context(), domain.CreateSubmissionParams{
			CandidatePublicID:  candidate.CandidatePublicID,
			AssignmentPublicID: assignmentID,
			SourceType:         domain.SourceTypeTelegramWebhook,
			SourceExternalID:   fmt.Sprintf("update:%d", update.UpdateID),
			InitialStatus:      domain.StateTelegramUpdateReceived,
			Metadata: map[string]any{
				"file_id":          update.Message.Document.FileID,
				"file_name":        update.Message.Document.FileName,
				"telegram_user_id": update.Message.From.ID,
			},
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{
			"submission_id": res.SubmissionID,
			"status":        string(res.Status),
			"created":       res.Created,
		})
	}
}

// resolveAssignment picks the assignment a webhook submission targets: a
// caption naming an assignment public id wins, otherwise the first active
// assignment.
func (s *Server) resolveAssignment(r *http.Request, caption string) (string, error) {
	caption = strings.TrimSpace(caption)
	if domain.HasPublicIDPrefix(caption, "asg") {
		return caption, nil
	}
	assignments, err := s.Repo.ListAssignments(r.Context(), true)
	if err != nil {
		return "", err
	}
	if len(assignments) == 0 {
		return "", fmt.Errorf("no active assignment to attach the submission to: %w", domain.ErrConflict)
	}
	return assignments[0].AssignmentPublicID, nil
}
