package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Local JSON-Schema copies of the structured-output contracts. The same
// shapes are sent to the provider as response schemas; validating the
// response locally tells us whether to trust the payload as-is or lean on
// normalization defaults.
const resumeSchemaJSON = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"summary": {"type": "string"},
		"skills": {"type": "array", "items": {"type": "string"}},
		"experiences": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"company": {"type": "string"},
					"duration": {"type": "string"},
					"highlights": {"type": "array", "items": {"type": "string"}}
				}
			}
		},
		"achievements": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["name", "skills"]
}`

const reportSchemaJSON = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"summary": {"type": "string"},
		"approach": {"type": "string"},
		"technologies": {"type": "array", "items": {"type": "string"}},
		"outcomes": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["summary"]
}`

var (
	resumeSchema = mustCompileSchema("resume.json", resumeSchemaJSON)
	reportSchema = mustCompileSchema("report.json", reportSchemaJSON)
)

func mustCompileSchema(name, raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("adding schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// ValidateResume checks a parsed resume against the structured contract.
// A validation error downgrades to best-effort handling, never a job
// failure.
func ValidateResume(doc map[string]any) error {
	return validateObject(resumeSchema, doc)
}

// ValidateReport checks a parsed project report against the contract.
func ValidateReport(doc map[string]any) error {
	return validateObject(reportSchema, doc)
}

func validateObject(schema *jsonschema.Schema, doc map[string]any) error {
	// Round-trip through JSON so numeric types match what the validator
	// expects regardless of how the map was built.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshaling document: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("document does not match schema: %w", err)
	}
	return nil
}
