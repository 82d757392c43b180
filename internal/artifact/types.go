// Package artifact defines the versioned cross-stage artifact contract: the
// typed payloads stages hand to each other, their codecs, and the
// version-policy-enforcing repository facade over object storage.
package artifact

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// Schema versions for the v1 contract.
const (
	SchemaNormalizedV1 = "normalized:v1"
	SchemaExportsV1    = "exports:v1"
)

// NormalizedArtifact is produced by the normalize stage and consumed by the
// evaluate stage. Content is the canonical markdown used as LLM input after
// format-specific extraction.
type NormalizedArtifact struct {
	SubmissionPublicID    string         `json:"submission_public_id" validate:"required"`
	AssignmentPublicID    string         `json:"assignment_public_id" validate:"required"`
	SourceType            string         `json:"source_type" validate:"required,oneof=api_upload telegram_webhook"`
	ContentMarkdown       string         `json:"content_markdown" validate:"required"`
	NormalizationMetadata map[string]any `json:"normalization_metadata"`
	SchemaVersion         string         `json:"schema_version" validate:"required"`
}

// ExportRowArtifact is the stable tabular row contract for CSV export. Chain
// metadata columns keep every row traceable to the rubric run that scored it.
type ExportRowArtifact struct {
	CandidateIdentifier  string `json:"candidate_identifier" validate:"required"`
	AssignmentIdentifier string `json:"assignment_identifier" validate:"required"`
	Score1To10           int    `json:"score_1_10" validate:"min=1,max=10"`
	CriteriaSummary      string `json:"criteria_summary"`
	Strengths            string `json:"strengths"`
	Issues               string `json:"issues"`
	Recommendations      string `json:"recommendations"`
	ChainVersion         string `json:"chain_version" validate:"required"`
	Model                string `json:"model" validate:"required"`
	SpecVersion          string `json:"spec_version" validate:"required"`
	ResponseLanguage     string `json:"response_language" validate:"required"`
	SchemaVersion        string `json:"schema_version" validate:"required"`
}

// exportRowHeader is the CSV header in row schema field order.
var exportRowHeader = []string{
	"candidate_identifier",
	"assignment_identifier",
	"score_1_10",
	"criteria_summary",
	"strengths",
	"issues",
	"recommendations",
	"chain_version",
	"model",
	"spec_version",
	"response_language",
	"schema_version",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateNormalized checks field-level constraints on a normalized artifact.
func ValidateNormalized(a NormalizedArtifact) error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("op=artifact.ValidateNormalized: %s: %w", err.Error(), domain.ErrValidation)
	}
	return nil
}

// ValidateExportRow checks field-level constraints on an export row.
func ValidateExportRow(row ExportRowArtifact) error {
	if err := validate.Struct(row); err != nil {
		return fmt.Errorf("op=artifact.ValidateExportRow: %s: %w", err.Error(), domain.ErrValidation)
	}
	return nil
}
