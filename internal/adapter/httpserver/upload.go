package httpserver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// allowedUploadExt is the ingress format allowlist. Binary formats are
// rejected here rather than parked at the normalize stage.
func allowedUploadExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// UploadHandler accepts a multipart submission upload. The source key is the
// content digest scoped to the assignment, so re-uploading the same file
// returns the existing submission instead of a duplicate.
func (s *Server) UploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("content-type must be multipart/form-data: %w", domain.ErrValidation), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code:    "INVALID_ARGUMENT",
					Message: "payload too large",
					Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%v: %w", err, domain.ErrValidation), nil)
			return
		}

		candidateID := strings.TrimSpace(r.FormValue("candidate_id"))
		assignmentID := strings.TrimSpace(r.FormValue("assignment_id"))
		if !domain.HasPublicIDPrefix(candidateID, "cand") {
			writeError(w, r, fmt.Errorf("candidate_id must be a cand_ public id: %w", domain.ErrValidation), map[string]string{"field": "candidate_id"})
			return
		}
		if !domain.HasPublicIDPrefix(assignmentID, "asg") {
			writeError(w, r, fmt.Errorf("assignment_id must be an asg_ public id: %w", domain.ErrValidation), map[string]string{"field": "assignment_id"})
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("file is required: %w", domain.ErrValidation), map[string]string{"field": "file"})
			return
		}
		defer func() { _ = file.Close() }()
		payload, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, fmt.Errorf("read file: %v: %w", err, domain.ErrValidation), nil)
			return
		}
		if len(payload) == 0 {
			writeError(w, r, fmt.Errorf("file is empty: %w", domain.ErrValidation), nil)
			return
		}
		if !allowedUploadExt(header.Filename) {
			writeError(w, r, fmt.Errorf("unsupported file extension %q: %w", filepath.Ext(header.Filename), domain.ErrValidation), nil)
			return
		}
		detected := mimetype.Detect(payload)
		if !strings.HasPrefix(detected.String(), "text/") {
			writeError(w, r, fmt.Errorf("payload sniffed as %s, expected text: %w", detected.String(), domain.ErrValidation), nil)
			return
		}

		digest := sha256.Sum256(append([]byte(assignmentID+"\n"), payload...))
		res, err := s.Repo.CreateSubmissionWithSource(r.Context(), domain.CreateSubmissionParams{
			CandidatePublicID:  candidateID,
			AssignmentPublicID: assignmentID,
			SourceType:         domain.SourceTypeAPIUpload,
			SourceExternalID:   "sha256:" + hex.EncodeToString(digest[:]),
			InitialStatus:      domain.StateUploaded,
			Metadata: map[string]any{
				"file_name": header.Filename,
				"mime":      detected.String(),
				"size":      len(payload),
			},
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		if res.Created {
			key := fmt.Sprintf("raw/%s/%s", res.SubmissionID, filepath.Base(header.Filename))
			ref, err := s.Storage.PutBytes(r.Context(), key, payload)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			if err := s.Repo.LinkArtifact(r.Context(), res.SubmissionID, domain.StageRaw, ref, ""); err != nil {
				writeError(w, r, err, nil)
				return
			}
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
