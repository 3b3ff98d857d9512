package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/afpipeline/runtime/pkg/pipeline"
)

func TestConvertToDefinition(t *testing.T) {
	parsed := ParseYAMLString(validYAML)
	def, err := ConvertToDefinition(parsed.Data)
	if err != nil {
		t.Fatalf("ConvertToDefinition failed: %v", err)
	}

	if def.ID != "invoices" || def.Name != "Invoice cleanup" || def.Version != "1.0.0" {
		t.Errorf("unexpected header: %+v", def)
	}
	zip, ok := def.Validators["zip"]
	if !ok || zip.Type != "pattern" || zip.Config["pattern"] != "[0-9]{5}" {
		t.Errorf("unexpected zip validator: %+v", zip)
	}

	root := def.Handler
	if root.Type != "sequence" || len(root.Children) != 2 {
		t.Fatalf("unexpected root handler: %+v", root)
	}
	cond := root.Children[1]
	if cond.IsEnabled() {
		t.Error("conditional should be disabled")
	}
	if cond.Handler == nil || cond.Handler.Type != "selectUsingMajority" {
		t.Errorf("unexpected nested handler: %+v", cond.Handler)
	}
	if _, ok := cond.Config["condition"].(map[string]interface{}); !ok {
		t.Errorf("condition not kept in config: %v", cond.Config)
	}
}

func TestConvertToDefinition_IDDefaultsToName(t *testing.T) {
	def, err := ConvertToDefinition(map[string]interface{}{
		"pipeline": map[string]interface{}{
			"name":    "cleanup",
			"version": "1",
			"handler": map[string]interface{}{"type": "eliminateDuplicates"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.ID != "cleanup" {
		t.Errorf("ID = %q, want cleanup", def.ID)
	}
}

func TestConvertToDefinition_Target(t *testing.T) {
	def, err := ConvertToDefinition(map[string]interface{}{
		"pipeline": map[string]interface{}{
			"name":    "p",
			"version": "1",
			"handler": map[string]interface{}{
				"type":   "runObjectOnQuery",
				"config": map[string]interface{}{"query": "Name"},
				"target": map[string]interface{}{
					"kind":      "modifier",
					"component": map[string]interface{}{"type": "case", "config": map[string]interface{}{"mode": "upper"}},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	target := def.Handler.Target
	if target == nil || target.Kind != pipeline.TargetKindModifier {
		t.Fatalf("unexpected target: %+v", target)
	}
	if target.Component.Type != "case" || target.Component.Config["mode"] != "upper" {
		t.Errorf("unexpected component: %+v", target.Component)
	}
}

func TestConvertToDefinition_Errors(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
	}{
		{"nil", nil},
		{"no pipeline", map[string]interface{}{}},
		{"no name", map[string]interface{}{"pipeline": map[string]interface{}{"version": "1"}}},
		{"no handler", map[string]interface{}{"pipeline": map[string]interface{}{"name": "a", "version": "1"}}},
		{"child not object", map[string]interface{}{"pipeline": map[string]interface{}{
			"name": "a", "version": "1",
			"handler": map[string]interface{}{"type": "sequence", "children": []interface{}{"x"}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ConvertToDefinition(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoader_Load(t *testing.T) {
	path := writeFile(t, "pipeline.toml", validTOML)
	loader := NewLoader(filepath.Dir(path))

	def, result, err := loader.Load(filepath.Base(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if result.Format != FormatTOML {
		t.Errorf("Format = %q, want toml", result.Format)
	}
	if len(def.Handler.Children) != 2 {
		t.Errorf("expected 2 children, got %d", len(def.Handler.Children))
	}
	entries := def.Handler.Children[1].Config["entries"].([]interface{})
	if entries[0] != "n/a" {
		t.Errorf("unexpected entries: %v", entries)
	}

	bad := writeFile(t, "bad.json", `{"pipeline": {}}`)
	_, result, err = NewLoader("").Load(bad)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if result == nil || len(result.ValidationErrors) == 0 {
		t.Error("expected validation errors in result")
	}
}
