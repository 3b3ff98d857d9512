package modifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/pkg/attribute"
)

func TestScriptModifier_ReturnsString(t *testing.T) {
	m, err := NewScriptModifierFromConfig(ScriptConfig{Script: `function modify(attr, doc) { return attr.value.toUpperCase() + "@" + doc.sourceName; }`})
	if err != nil {
		t.Fatalf("NewScriptModifierFromConfig() error = %v", err)
	}

	a := attribute.New("City", "paris")
	if err := m.Modify(context.Background(), a, document.New("d", "scan.tif")); err != nil {
		t.Fatalf("Modify() error = %v", err)
	}
	if a.Text() != "PARIS@scan.tif" {
		t.Errorf("Text() = %q, want %q", a.Text(), "PARIS@scan.tif")
	}
}

func TestScriptModifier_ReturnsObject(t *testing.T) {
	m, err := NewScriptModifierFromConfig(ScriptConfig{Script: `
function modify(attr) {
  if (attr.childCount === 0) { return; }
  return { name: "FullName", type: "Person", value: attr.children[1].value + ", " + attr.children[0].value };
}`})
	if err != nil {
		t.Fatalf("NewScriptModifierFromConfig() error = %v", err)
	}

	a := attribute.New("Person", "Jo Ng", attribute.New("First", "Jo"), attribute.New("Last", "Ng"))
	if err := m.Modify(context.Background(), a, nil); err != nil {
		t.Fatalf("Modify() error = %v", err)
	}
	if a.Name != "FullName" || a.Type != "Person" || a.Text() != "Ng, Jo" {
		t.Errorf("got %s@%s=%q, want FullName@Person=\"Ng, Jo\"", a.Name, a.Type, a.Text())
	}

	leaf := attribute.New("Leaf", "same")
	if err := m.Modify(context.Background(), leaf, nil); err != nil {
		t.Fatalf("Modify() error = %v", err)
	}
	if leaf.Text() != "same" {
		t.Errorf("undefined result changed value to %q", leaf.Text())
	}
}

func TestScriptModifier_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"missing function", `function other() {}`},
		{"syntax error", `function modify( {`},
		{"blank", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScriptModifierFromConfig(ScriptConfig{Script: tt.script})
			if !errhandling.IsInvalidConfiguration(err) {
				t.Errorf("error = %v, want invalid configuration", err)
			}
		})
	}
}

func TestScriptModifier_RuntimeErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		code   string
	}{
		{"throws", `function modify() { throw new Error("nope"); }`, ErrCodeExecutionFailed},
		{"invalid name", `function modify() { return { name: "1bad" }; }`, ErrCodeInvalidResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewScriptModifierFromConfig(ScriptConfig{Script: tt.script})
			if err != nil {
				t.Fatalf("NewScriptModifierFromConfig() error = %v", err)
			}
			err = m.Modify(context.Background(), attribute.New("A", "x"), nil)
			var scriptErr *ScriptError
			if !errors.As(err, &scriptErr) {
				t.Fatalf("Modify() error = %v, want *ScriptError", err)
			}
			if scriptErr.Code != tt.code {
				t.Errorf("Code = %s, want %s", scriptErr.Code, tt.code)
			}
		})
	}
}

func TestScriptModifier_Canceled(t *testing.T) {
	m, err := NewScriptModifierFromConfig(ScriptConfig{Script: `function modify() { while (true) {} }`})
	if err != nil {
		t.Fatalf("NewScriptModifierFromConfig() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.Modify(ctx, attribute.New("A", "x"), nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Modify() error = %v, want deadline exceeded", err)
	}
}

func TestScriptModifier_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.js")
	if err := os.WriteFile(path, []byte(`function modify(attr) { return attr.value + "!"; }`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	m, err := NewScriptModifierFromConfig(ScriptConfig{ScriptFile: path})
	if err != nil {
		t.Fatalf("NewScriptModifierFromConfig() error = %v", err)
	}
	a := attribute.New("A", "hi")
	if err := m.Modify(context.Background(), a, nil); err != nil {
		t.Fatalf("Modify() error = %v", err)
	}
	if a.Text() != "hi!" {
		t.Errorf("Text() = %q, want %q", a.Text(), "hi!")
	}

	_, err = NewScriptModifierFromConfig(ScriptConfig{ScriptFile: "../outside.js"})
	if !errhandling.IsInvalidConfiguration(err) {
		t.Errorf("path traversal: error = %v, want invalid configuration", err)
	}
}

func TestParseScriptConfig(t *testing.T) {
	if _, err := ParseScriptConfig(map[string]interface{}{}); err == nil {
		t.Error("expected error when neither script nor scriptFile is set")
	}
	if _, err := ParseScriptConfig(map[string]interface{}{"script": "x", "scriptFile": "y"}); err == nil {
		t.Error("expected error when both script and scriptFile are set")
	}
	cfg, err := ParseScriptConfig(map[string]interface{}{"script": "function modify(){}"})
	if err != nil {
		t.Fatalf("ParseScriptConfig() error = %v", err)
	}
	if cfg.Script != "function modify(){}" {
		t.Errorf("Script = %q", cfg.Script)
	}
}

func TestScriptSplitter(t *testing.T) {
	s, err := NewScriptSplitterFromConfig(ScriptConfig{Script: `
function split(attr) {
  if (attr.value.indexOf(" and ") < 0) { return []; }
  return attr.value.split(" and ");
}`})
	if err != nil {
		t.Fatalf("NewScriptSplitterFromConfig() error = %v", err)
	}

	a := attribute.NewTyped("Buyer", "Person", "Al and Bo")
	parts, err := s.Split(context.Background(), a, nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("Split() returned %d parts, want 2", len(parts))
	}
	if parts[0].Text() != "Al" || parts[1].Text() != "Bo" {
		t.Errorf("parts = %q, %q, want Al, Bo", parts[0].Text(), parts[1].Text())
	}
	if parts[1].Type != "Person" {
		t.Errorf("part type = %q, want %q", parts[1].Type, "Person")
	}

	parts, err = s.Split(context.Background(), attribute.New("Buyer", "solo"), nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("Split(solo) returned %d parts, want none", len(parts))
	}
}

func TestSetModifier(t *testing.T) {
	m, err := NewSetFromConfig(SetConfig{
		Value: `{{child.Last}}, {{child.First}} ({{doc.tags.vendor | default: "n/a"}})`,
		Type:  "{{attr.type}}+Formatted",
	})
	if err != nil {
		t.Fatalf("NewSetFromConfig() error = %v", err)
	}

	doc := document.New("d", "s")
	doc.SetTag("Vendor", "Acme")
	a := attribute.NewTyped("Person", "Buyer", "x", attribute.New("First", "Jo"), attribute.New("Last", "Ng"))
	if err := m.Modify(context.Background(), a, doc); err != nil {
		t.Fatalf("Modify() error = %v", err)
	}
	if a.Text() != "Ng, Jo (Acme)" {
		t.Errorf("Text() = %q, want %q", a.Text(), "Ng, Jo (Acme)")
	}
	if a.Type != "Buyer+Formatted" {
		t.Errorf("Type = %q, want %q", a.Type, "Buyer+Formatted")
	}

	for _, cfg := range []SetConfig{{}, {Value: "{{broken"}} {
		if _, err := NewSetFromConfig(cfg); !errhandling.IsInvalidConfiguration(err) {
			t.Errorf("NewSetFromConfig(%+v) error = %v, want invalid configuration", cfg, err)
		}
	}
}

func TestCaseModifier(t *testing.T) {
	tests := []struct {
		mode string
		in   string
		want string
	}{
		{CaseUpper, "straße", "STRASSE"},
		{CaseLower, "ACME Corp", "acme corp"},
		{CaseTitle, "jo NG", "Jo Ng"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			m, err := NewCaseFromConfig(CaseConfig{Mode: tt.mode})
			if err != nil {
				t.Fatalf("NewCaseFromConfig() error = %v", err)
			}
			a := attribute.New("A", tt.in)
			if err := m.Modify(context.Background(), a, nil); err != nil {
				t.Fatalf("Modify() error = %v", err)
			}
			if a.Text() != tt.want {
				t.Errorf("Text() = %q, want %q", a.Text(), tt.want)
			}
		})
	}

	for _, cfg := range []CaseConfig{{Mode: "sideways"}, {Mode: CaseUpper, Language: "not a tag!"}} {
		if _, err := NewCaseFromConfig(cfg); !errhandling.IsInvalidConfiguration(err) {
			t.Errorf("NewCaseFromConfig(%+v) error = %v, want invalid configuration", cfg, err)
		}
	}
}

func TestDelimiterSplitter(t *testing.T) {
	s, err := NewDelimiterFromConfig(DelimiterConfig{})
	if err != nil {
		t.Fatalf("NewDelimiterFromConfig() error = %v", err)
	}

	a := attribute.NewTyped("Tag", "Label", "red, green;; blue ")
	a.Validator = "color"
	parts, err := s.Split(context.Background(), a, nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("Split() returned %d parts, want 3", len(parts))
	}
	got := []string{parts[0].Text(), parts[1].Text(), parts[2].Text()}
	if want := []string{"red", "green", "blue"}; !slices.Equal(got, want) {
		t.Errorf("parts = %v, want %v", got, want)
	}
	if parts[2].Validator != "color" {
		t.Errorf("Validator = %q, want %q", parts[2].Validator, "color")
	}
	if parts[0].ID == a.ID {
		t.Error("part reuses the original ID")
	}

	parts, err = s.Split(context.Background(), attribute.New("Tag", "single"), nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if parts != nil {
		t.Errorf("Split(single) = %v, want nil", parts)
	}

	if _, err = NewDelimiterFromConfig(DelimiterConfig{Pattern: "("}); !errhandling.IsInvalidConfiguration(err) {
		t.Errorf("bad pattern: error = %v, want invalid configuration", err)
	}
}
