// Package chain loads and applies the evaluation chain spec: a versioned
// YAML document fixing the model, runtime, rubric, prompts, and the JSON
// shape the model reply must satisfy. The spec is the reproducibility
// anchor: its versions travel into llm_runs and export rows.
package chain

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// RubricCriterion is one weighted rubric entry.
type RubricCriterion struct {
	ID          string  `yaml:"id"`
	Description string  `yaml:"description"`
	Weight      float64 `yaml:"weight"`
}

// AIAssistancePolicy controls the AI-likelihood section of the reply.
type AIAssistancePolicy struct {
	Enabled       bool     `yaml:"enabled"`
	AffectsScore  bool     `yaml:"affects_score"`
	RequireFields []string `yaml:"require_fields"`
}

// Runtime pins the model call parameters.
type Runtime struct {
	Temperature      float64 `yaml:"temperature"`
	Seed             *int    `yaml:"seed"`
	ResponseLanguage string  `yaml:"response_language"`
}

// Prompts holds the system prompt and the user template.
type Prompts struct {
	System       string `yaml:"system"`
	UserTemplate string `yaml:"user_template"`
}

// Rubric groups the criteria with the assistance policy.
type Rubric struct {
	Criteria           []RubricCriterion  `yaml:"criteria"`
	AIAssistancePolicy AIAssistancePolicy `yaml:"ai_assistance_policy"`
}

// Spec is the parsed evaluation chain document.
type Spec struct {
	SpecVersion  string         `yaml:"spec_version"`
	ChainVersion string         `yaml:"chain_version"`
	Model        string         `yaml:"model"`
	Runtime      Runtime        `yaml:"runtime"`
	Rubric       Rubric         `yaml:"rubric"`
	Prompts      Prompts        `yaml:"prompts"`
	LLMResponse  map[string]any `yaml:"llm_response"`
}

var (
	isoLanguageRe = regexp.MustCompile(`^[a-z]{2}(?:-[A-Z]{2})?$`)
	placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)
)

// LoadSpec reads and parses a chain spec file.
func LoadSpec(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=chain.LoadSpec: %w", err)
	}
	return ParseSpec(raw)
}

// ParseSpec decodes and validates a chain spec document. Every malformed
// field is a validation fault.
func ParseSpec(raw []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("op=chain.ParseSpec: %v: %w", err, domain.ErrValidation)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("op=chain.ParseSpec: %w", err)
	}
	return &s, nil
}

func (s *Spec) validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf(format+": %w", append(args, domain.ErrValidation)...)
	}
	if s.SpecVersion == "" {
		return fail("spec_version is required")
	}
	if s.ChainVersion == "" {
		return fail("chain_version is required")
	}
	if s.Model == "" {
		return fail("model is required")
	}
	if !isoLanguageRe.MatchString(s.Runtime.ResponseLanguage) {
		return fail("runtime.response_language must be an ISO code, e.g. 'ru' or 'en'")
	}
	if len(s.Rubric.Criteria) == 0 {
		return fail("rubric.criteria must contain at least one criterion")
	}
	total := 0.0
	for i, c := range s.Rubric.Criteria {
		if c.ID == "" || c.Description == "" {
			return fail("rubric.criteria[%d] needs id and description", i)
		}
		total += c.Weight
	}
	if total <= 0 {
		return fail("rubric.criteria total weight must be > 0")
	}
	for _, f := range s.Rubric.AIAssistancePolicy.RequireFields {
		if f == "" {
			return fail("rubric.ai_assistance_policy.require_fields must contain non-empty strings")
		}
	}
	if s.Prompts.System == "" || s.Prompts.UserTemplate == "" {
		return fail("prompts.system and prompts.user_template are required")
	}
	if s.LLMResponse == nil {
		return fail("llm_response is required")
	}
	if t, _ := s.LLMResponse["type"].(string); t != "json" {
		return fail("llm_response.type must be 'json'")
	}
	if _, ok := s.LLMResponse["required"].([]any); !ok {
		return fail("llm_response.required must be a list")
	}
	if _, ok := s.LLMResponse["properties"].(map[string]any); !ok {
		return fail("llm_response.properties must be an object")
	}
	return nil
}

// RenderUserPrompt substitutes {{placeholder}} markers in the user template.
// Inputs resolve first, then the spec's own fields; map and list values
// render as sorted JSON. An unresolvable placeholder is a validation fault.
func (s *Spec) RenderUserPrompt(inputs map[string]any) (string, error) {
	specMap := s.asMapping()
	var renderErr error
	out := placeholderRe.ReplaceAllStringFunc(s.Prompts.UserTemplate, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		value, ok := lookupDotPath(inputs, key)
		if !ok {
			value, ok = lookupDotPath(specMap, key)
		}
		if !ok {
			if renderErr == nil {
				renderErr = fmt.Errorf("missing placeholder value: %s: %w", key, domain.ErrValidation)
			}
			return m
		}
		return renderValue(value)
	})
	if renderErr != nil {
		return "", fmt.Errorf("op=chain.RenderUserPrompt: %w", renderErr)
	}
	return out, nil
}

// ValidateResponse checks the model reply against the llm_response shape.
func (s *Spec) ValidateResponse(payload map[string]any) error {
	if err := validateSchemaNode(payload, s.LLMResponse, "$"); err != nil {
		return fmt.Errorf("op=chain.ValidateResponse: %w", err)
	}
	return nil
}

func validateSchemaNode(value any, schema map[string]any, path string) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf(format+": %w", append(args, domain.ErrValidation)...)
	}
	schemaType, _ := schema["type"].(string)
	switch schemaType {
	case "json", "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fail("%s: expected object", path)
		}
		required, _ := schema["required"].([]any)
		for _, f := range required {
			name, ok := f.(string)
			if !ok {
				return fail("%s: invalid required field name", path)
			}
			if _, present := obj[name]; !present {
				return fail("%s.%s: required field is missing", path, name)
			}
		}
		properties, _ := schema["properties"].(map[string]any)
		keys := make([]string, 0, len(properties))
		for k := range properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fieldValue, present := obj[key]
			if !present {
				continue
			}
			fieldSchema, ok := properties[key].(map[string]any)
			if !ok {
				return fail("%s.%s: field schema must be object", path, key)
			}
			if err := validateSchemaNode(fieldValue, fieldSchema, path+"."+key); err != nil {
				return err
			}
		}
		return nil
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return fail("%s: expected array", path)
		}
		itemSchema, ok := schema["items"].(map[string]any)
		if !ok {
			return fail("%s: array schema must define items", path)
		}
		for i, item := range arr {
			if err := validateSchemaNode(item, itemSchema, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case "string":
		if _, ok := value.(string); !ok {
			return fail("%s: expected string", path)
		}
		return nil
	case "integer":
		n, ok := asNumber(value)
		if !ok || n != math.Trunc(n) {
			return fail("%s: expected integer", path)
		}
		return checkBounds(n, schema, path)
	case "number":
		n, ok := asNumber(value)
		if !ok {
			return fail("%s: expected number", path)
		}
		return checkBounds(n, schema, path)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fail("%s: expected boolean", path)
		}
		return nil
	default:
		return fail("%s: unsupported schema type %q", path, schemaType)
	}
}

func checkBounds(n float64, schema map[string]any, path string) error {
	if min, ok := asNumber(schema["minimum"]); ok && n < min {
		return fmt.Errorf("%s: value is below minimum: %w", path, domain.ErrValidation)
	}
	if max, ok := asNumber(schema["maximum"]); ok && n > max {
		return fmt.Errorf("%s: value is above maximum: %w", path, domain.ErrValidation)
	}
	return nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func (s *Spec) asMapping() map[string]any {
	criteria := make([]any, 0, len(s.Rubric.Criteria))
	for _, c := range s.Rubric.Criteria {
		criteria = append(criteria, map[string]any{
			"id":          c.ID,
			"description": c.Description,
			"weight":      c.Weight,
		})
	}
	var seed any
	if s.Runtime.Seed != nil {
		seed = *s.Runtime.Seed
	}
	return map[string]any{
		"spec_version":  s.SpecVersion,
		"chain_version": s.ChainVersion,
		"model":         s.Model,
		"runtime": map[string]any{
			"temperature":       s.Runtime.Temperature,
			"seed":              seed,
			"response_language": s.Runtime.ResponseLanguage,
		},
		"rubric": map[string]any{
			"criteria": criteria,
			"ai_assistance_policy": map[string]any{
				"enabled":        s.Rubric.AIAssistancePolicy.Enabled,
				"affects_score":  s.Rubric.AIAssistancePolicy.AffectsScore,
				"require_fields": toAnySlice(s.Rubric.AIAssistancePolicy.RequireFields),
			},
		},
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func lookupDotPath(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func renderValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case map[string]any, []any:
		// json.Marshal sorts object keys, matching the stable rendering the
		// reproducibility contract requires.
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(raw)
	default:
		return fmt.Sprintf("%v", value)
	}
}
