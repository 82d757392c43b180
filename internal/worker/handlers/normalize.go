package handlers

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/artifact"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-assignment-evaluator/pkg/textx"
)

// plainTextExtensions are the formats normalized inline. Binary formats
// (pdf, docx) need an extraction collaborator and are rejected as
// unsupported until one is wired behind the storage port.
var plainTextExtensions = map[string]struct{}{
	".txt": {},
	".md":  {},
}

// Normalize loads the raw artifact, verifies the payload is a supported text
// format, canonicalizes it to markdown, and writes the normalized artifact.
func (d Deps) Normalize(ctx context.Context, claim domain.WorkItemClaim) domain.ProcessResult {
	rawRef, err := d.Repo.GetArtifactRef(ctx, claim.SubmissionID, domain.StageRaw)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure(domain.ErrorCodeArtifactMissing, "no raw artifact linked")
		}
		return failure(domain.ErrorCodeInternal, "resolve raw artifact: %v", err)
	}

	key := artifact.StorageKeyFromRef(rawRef)
	payload, err := d.Storage.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure(domain.ErrorCodeArtifactMissing, "raw artifact %s not in storage", key)
		}
		return failure(domain.ErrorCodeInternal, "read raw artifact: %v", err)
	}

	ext := strings.ToLower(path.Ext(key))
	if _, ok := plainTextExtensions[ext]; !ok {
		return failure(domain.ErrorCodeUnsupportedFormat, "extension %q is not a supported text format", ext)
	}
	detected := mimetype.Detect(payload)
	if !strings.HasPrefix(detected.String(), "text/") {
		return failure(domain.ErrorCodeUnsupportedFormat, "payload sniffed as %s, expected text", detected.String())
	}

	content := textx.UnifiedMarkdown(string(payload))
	if content == "" {
		return failure(domain.ErrorCodeValidation, "raw payload is empty after normalization")
	}

	snap, err := d.Repo.GetSubmission(ctx, claim.SubmissionID)
	if err != nil {
		return failure(domain.ErrorCodeInternal, "load submission: %v", err)
	}
	source, err := d.submissionSource(ctx, claim.SubmissionID)
	if err != nil {
		return failure(domain.ErrorCodeInternal, "resolve source: %v", err)
	}

	normalized := artifact.NormalizedArtifact{
		SubmissionPublicID: claim.SubmissionID,
		AssignmentPublicID: snap.AssignmentPublicID,
		SourceType:         source.SourceType,
		ContentMarkdown:    content,
		NormalizationMetadata: map[string]any{
			"original_extension": ext,
			"detected_mime":      detected.String(),
			"original_bytes":     len(payload),
		},
		SchemaVersion: artifact.SchemaNormalizedV1,
	}
	ref, err := d.Artifacts.SaveNormalized(ctx, claim.SubmissionID, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return failure(domain.ErrorCodeSchemaValidationFailed, "normalized artifact rejected: %v", err)
		}
		return failure(domain.ErrorCodeInternal, "save normalized artifact: %v", err)
	}

	return domain.ProcessResult{
		Success:         true,
		Detail:          "normalized " + ext + " payload",
		ArtifactRef:     ref,
		ArtifactVersion: artifact.SchemaNormalizedV1,
	}
}
