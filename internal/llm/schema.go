package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/spherical/content-pipeline/internal/domain"
)

// ResumeAnalysis is the JSON object the model is asked to return.
type ResumeAnalysis struct {
	Name       string               `json:"name"`
	Title      string               `json:"title"`
	Summary    string               `json:"summary"`
	Contacts   map[string]string    `json:"contacts"`
	Skills     map[string][]string  `json:"skills"`
	Experience []AnalysisExperience `json:"experience"`
	Education  []AnalysisEducation  `json:"education"`
	Keywords   []string             `json:"keywords"`
}

// AnalysisExperience is one entry of ResumeAnalysis.Experience.
type AnalysisExperience struct {
	Company          string   `json:"company"`
	Title            string   `json:"title"`
	StartDate        string   `json:"startDate"`
	EndDate          string   `json:"endDate"`
	Responsibilities []string `json:"responsibilities"`
	Achievements     []string `json:"achievements"`
}

// AnalysisEducation is one entry of ResumeAnalysis.Education.
type AnalysisEducation struct {
	Institution    string `json:"institution"`
	Degree         string `json:"degree"`
	Field          string `json:"field"`
	GraduationYear string `json:"graduationYear"`
}

const analysisSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "summary", "skills", "experience", "education"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "summary": {"type": "string"},
    "contacts": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "skills": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {"type": "string"}
      }
    },
    "experience": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["company", "title"],
        "properties": {
          "company": {"type": "string"},
          "title": {"type": "string"},
          "startDate": {"type": "string"},
          "endDate": {"type": "string"},
          "responsibilities": {"type": "array", "items": {"type": "string"}},
          "achievements": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "education": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["institution"],
        "properties": {
          "institution": {"type": "string"},
          "degree": {"type": "string"},
          "field": {"type": "string"},
          "graduationYear": {"type": ["string", "integer"]}
        }
      }
    },
    "keywords": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func analysisSchemaCompiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("analysis.json", strings.NewReader(analysisSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("analysis.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// ParseAnalysis unwraps the JSON object in a model reply, validates it
// against the analysis schema and decodes it. A reply that does not
// validate is a transient failure: asking again may produce a good one.
func ParseAnalysis(reply string) (*ResumeAnalysis, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, domain.EnrichmentTransientError("reply contained no JSON object", err)
	}

	schema, err := analysisSchemaCompiled()
	if err != nil {
		return nil, domain.EnrichmentPermanentError("analysis schema unavailable", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, domain.EnrichmentTransientError("reply is not valid JSON", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, domain.EnrichmentTransientError("reply does not match schema", err)
	}

	// graduationYear may arrive as a number.
	normalizeYears(v)
	normalized, err := json.Marshal(v)
	if err != nil {
		return nil, domain.EnrichmentTransientError("reply could not be re-encoded", err)
	}

	var out ResumeAnalysis
	if err := json.Unmarshal(normalized, &out); err != nil {
		return nil, domain.EnrichmentTransientError("reply could not be decoded", err)
	}
	return &out, nil
}

// ExtractJSON strips code fences and surrounding prose from a model reply,
// returning the outermost JSON object.
func ExtractJSON(reply string) ([]byte, error) {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no object found")
	}
	return []byte(s[start : end+1]), nil
}

func normalizeYears(v any) {
	root, ok := v.(map[string]any)
	if !ok {
		return
	}
	edu, ok := root["education"].([]any)
	if !ok {
		return
	}
	for _, item := range edu {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if year, ok := m["graduationYear"].(float64); ok {
			m["graduationYear"] = fmt.Sprintf("%d", int(year))
		}
	}
}
