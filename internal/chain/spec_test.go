package chain_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/chain"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

func loadTestSpec(t *testing.T) *chain.Spec {
	t.Helper()
	spec, err := chain.LoadSpec(filepath.Join("testdata", "chain_v1.yaml"))
	require.NoError(t, err)
	return spec
}

func TestLoadSpec(t *testing.T) {
	spec := loadTestSpec(t)
	assert.Equal(t, "spec:v1", spec.SpecVersion)
	assert.Equal(t, "chain:v1", spec.ChainVersion)
	assert.Equal(t, "gpt-test", spec.Model)
	assert.Equal(t, "en", spec.Runtime.ResponseLanguage)
	require.NotNil(t, spec.Runtime.Seed)
	assert.Equal(t, 42, *spec.Runtime.Seed)
	assert.Len(t, spec.Rubric.Criteria, 3)
	assert.Equal(t, []string{"likelihood", "confidence"}, spec.Rubric.AIAssistancePolicy.RequireFields)
}

func TestParseSpecValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing spec_version", `
chain_version: "chain:v1"
model: m
`},
		{"bad language", `
spec_version: v1
chain_version: v1
model: m
runtime: {temperature: 0, response_language: english}
rubric:
  criteria: [{id: a, description: d, weight: 1}]
  ai_assistance_policy: {enabled: false, affects_score: false, require_fields: []}
prompts: {system: s, user_template: u}
llm_response: {type: json, required: [], properties: {}}
`},
		{"zero total weight", `
spec_version: v1
chain_version: v1
model: m
runtime: {temperature: 0, response_language: en}
rubric:
  criteria: [{id: a, description: d, weight: 0}]
  ai_assistance_policy: {enabled: false, affects_score: false, require_fields: []}
prompts: {system: s, user_template: u}
llm_response: {type: json, required: [], properties: {}}
`},
		{"llm_response wrong type", `
spec_version: v1
chain_version: v1
model: m
runtime: {temperature: 0, response_language: en}
rubric:
  criteria: [{id: a, description: d, weight: 1}]
  ai_assistance_policy: {enabled: false, affects_score: false, require_fields: []}
prompts: {system: s, user_template: u}
llm_response: {type: text}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chain.ParseSpec([]byte(tt.yaml))
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestRenderUserPrompt(t *testing.T) {
	spec := loadTestSpec(t)
	out, err := spec.RenderUserPrompt(map[string]any{
		"assignment_title": "Backend Exercise",
		"content_markdown": "# Solution",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Assignment: Backend Exercise")
	assert.Contains(t, out, "# Solution")
	// Spec fields resolve after inputs; maps and lists render as JSON.
	assert.Contains(t, out, `"id":"correctness"`)
	assert.Contains(t, out, "Reply in en as JSON.")
}

func TestRenderUserPromptInputsWinOverSpec(t *testing.T) {
	spec := loadTestSpec(t)
	out, err := spec.RenderUserPrompt(map[string]any{
		"assignment_title": "x",
		"content_markdown": "y",
		"runtime":          map[string]any{"response_language": "ru"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Reply in ru as JSON.")
}

func TestRenderUserPromptMissingPlaceholder(t *testing.T) {
	spec := loadTestSpec(t)
	_, err := spec.RenderUserPrompt(map[string]any{"assignment_title": "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func validReply() map[string]any {
	return map[string]any{
		"criteria": []any{
			map[string]any{"id": "correctness", "score": float64(8), "reason": "ok"},
		},
		"organizer_feedback": map[string]any{
			"strengths": []any{"clear"},
		},
		"ai_assistance": map[string]any{
			"likelihood": 0.3,
			"confidence": 0.6,
		},
	}
}

func TestValidateResponse(t *testing.T) {
	spec := loadTestSpec(t)
	assert.NoError(t, spec.ValidateResponse(validReply()))
}

func TestValidateResponseFailures(t *testing.T) {
	spec := loadTestSpec(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing required", func(m map[string]any) { delete(m, "criteria") }},
		{"score out of range", func(m map[string]any) {
			m["criteria"] = []any{map[string]any{"id": "x", "score": float64(11)}}
		}},
		{"score not integer", func(m map[string]any) {
			m["criteria"] = []any{map[string]any{"id": "x", "score": 7.5}}
		}},
		{"wrong element type", func(m map[string]any) {
			m["criteria"] = []any{"not an object"}
		}},
		{"likelihood above maximum", func(m map[string]any) {
			m["ai_assistance"] = map[string]any{"likelihood": 1.5, "confidence": 0.5}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := validReply()
			tt.mutate(reply)
			assert.ErrorIs(t, spec.ValidateResponse(reply), domain.ErrValidation)
		})
	}
}
