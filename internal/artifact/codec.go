package artifact

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// EncodeNormalized serializes a normalized artifact to canonical JSON.
func EncodeNormalized(a NormalizedArtifact) ([]byte, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("op=artifact.EncodeNormalized: %w", err)
	}
	return payload, nil
}

// DecodeNormalized parses a normalized artifact payload. Unknown fields are
// rejected so a payload from a future contract cannot silently lose data.
func DecodeNormalized(payload []byte) (NormalizedArtifact, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	var a NormalizedArtifact
	if err := dec.Decode(&a); err != nil {
		return NormalizedArtifact{}, fmt.Errorf("op=artifact.DecodeNormalized: %s: %w", err.Error(), domain.ErrValidation)
	}
	return a, nil
}

// EncodeExportRows serializes rows as CSV with a header derived from the row
// schema field order. Empty input yields an empty payload.
func EncodeExportRows(rows []ExportRowArtifact) ([]byte, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportRowHeader); err != nil {
		return nil, fmt.Errorf("op=artifact.EncodeExportRows: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.CandidateIdentifier,
			row.AssignmentIdentifier,
			strconv.Itoa(row.Score1To10),
			row.CriteriaSummary,
			row.Strengths,
			row.Issues,
			row.Recommendations,
			row.ChainVersion,
			row.Model,
			row.SpecVersion,
			row.ResponseLanguage,
			row.SchemaVersion,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("op=artifact.EncodeExportRows: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("op=artifact.EncodeExportRows: %w", err)
	}
	return buf.Bytes(), nil
}
