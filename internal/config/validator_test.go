package config

import (
	"strings"
	"testing"
)

func validate(t *testing.T, content string) *ValidationResult {
	t.Helper()
	parsed := ParseYAMLString(content)
	if !parsed.IsValid() {
		t.Fatalf("parse failed: %v", parsed.Errors)
	}
	return ValidateConfig(parsed.Data)
}

func hasErrorAt(result *ValidationResult, path string) bool {
	for _, e := range result.Errors {
		if e.Path == path {
			return true
		}
	}
	return false
}

func TestValidateConfig_Valid(t *testing.T) {
	if result := validate(t, validYAML); !result.Valid {
		t.Errorf("expected valid config, got %v", result.Errors)
	}
}

func TestValidateConfig_Empty(t *testing.T) {
	if result := ValidateConfig(nil); result.Valid {
		t.Error("expected nil data to be invalid")
	}
	if result := ValidateConfig(map[string]interface{}{}); result.Valid {
		t.Error("expected empty data to be invalid")
	}
}

func TestValidateConfig_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing pipeline", "other: 1\n"},
		{"missing handler", "pipeline: {name: a, version: '1'}\n"},
		{"handler without type", "pipeline: {name: a, version: '1', handler: {config: {}}}\n"},
		{"unknown handler field", "pipeline: {name: a, version: '1', handler: {type: eliminateDuplicates, bogus: 1}}\n"},
		{"enabled not bool", "pipeline: {name: a, version: '1', handler: {type: eliminateDuplicates, enabled: 'no'}}\n"},
		{"bad target kind", "pipeline: {name: a, version: '1', handler: {type: runObjectOnQuery, target: {kind: other}}}\n"},
		{"bad schema version", "schemaVersion: '2.0.0'\npipeline: {name: a, version: '1', handler: {type: eliminateDuplicates}}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validate(t, tt.content)
			if result.Valid {
				t.Fatal("expected schema validation to fail")
			}
			if len(result.Errors) == 0 {
				t.Fatal("expected at least one error")
			}
		})
	}
}

func TestValidateConfig_UnknownTypes(t *testing.T) {
	content := `
pipeline:
  name: a
  version: "1"
  validators:
    zip: {type: bogusValidator}
  handler:
    type: sequence
    children:
      - type: bogusHandler
      - type: conditional
        handler: {type: eliminateDuplicates}
        config: {condition: {type: bogusPredicate}}
`
	result := validate(t, content)
	if result.Valid {
		t.Fatal("expected unknown types to be reported")
	}
	for _, path := range []string{
		"/pipeline/validators/zip/type",
		"/pipeline/handler/children/0/type",
		"/pipeline/handler/children/1/config/condition/type",
	} {
		if !hasErrorAt(result, path) {
			t.Errorf("expected error at %s, got %v", path, result.Errors)
		}
	}
}

func TestValidateConfig_MissingCollaborators(t *testing.T) {
	content := `
pipeline:
  name: a
  version: "1"
  handler:
    type: sequence
    children:
      - type: sequence
      - type: conditional
        config: {}
      - type: removeSubAttributes
        config: {conditionalRemove: true}
      - type: runObjectOnQuery
        config: {query: A}
`
	result := validate(t, content)
	for _, path := range []string{
		"/pipeline/handler/children/0/children",
		"/pipeline/handler/children/1/handler",
		"/pipeline/handler/children/1/config/condition",
		"/pipeline/handler/children/2/config/selector",
		"/pipeline/handler/children/3/target",
	} {
		if !hasErrorAt(result, path) {
			t.Errorf("expected error at %s, got %v", path, result.Errors)
		}
	}
}

func TestValidateConfig_TargetComponentKind(t *testing.T) {
	content := `
pipeline:
  name: a
  version: "1"
  handler:
    type: runObjectOnQuery
    config: {query: A}
    target:
      kind: splitter
      component: {type: case, mode: upper}
`
	result := validate(t, content)
	if !hasErrorAt(result, "/pipeline/handler/target/component/type") {
		t.Errorf("expected a modifier used as splitter to be reported, got %v", result.Errors)
	}
}

func TestGetEmbeddedSchema(t *testing.T) {
	if !strings.Contains(string(GetEmbeddedSchema()), "pipeline-schema.json") {
		t.Error("embedded schema missing or unexpected")
	}
}
