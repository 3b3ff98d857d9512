package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/afpipeline/runtime/internal/config"
	"github.com/afpipeline/runtime/internal/persistence"
	"github.com/afpipeline/runtime/pkg/pipeline"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name   string
		result *config.Result
		want   int
	}{
		{"valid", &config.Result{}, ExitSuccess},
		{"parse", &config.Result{ParseErrors: []config.ParseError{{Message: "x"}}}, ExitParseError},
		{"validation", &config.Result{ValidationErrors: []config.ValidationError{{Message: "x"}}}, ExitValidationError},
	}
	for _, tt := range tests {
		if got := ExitCodeFor(tt.result); got != tt.want {
			t.Errorf("%s: ExitCodeFor = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestPrintParseErrors_Location(t *testing.T) {
	var buf bytes.Buffer
	PrintParseErrors(&buf, []config.ParseError{
		{Path: "p.json", Line: 3, Column: 7, Message: "bad", Type: config.ErrorTypeSyntax},
		{Message: "no location"},
	}, true)

	out := buf.String()
	if !strings.Contains(out, "p.json:3:7: bad") {
		t.Errorf("missing location in %q", out)
	}
	if !strings.Contains(out, "  no location") {
		t.Errorf("missing plain message in %q", out)
	}
	if !strings.Contains(out, "Type: syntax") {
		t.Errorf("verbose output should include the type: %q", out)
	}
}

func TestPrintValidationErrors(t *testing.T) {
	var buf bytes.Buffer
	long := strings.Repeat("x", 100)
	PrintValidationErrors(&buf, []config.ValidationError{{Path: "/pipeline", Message: long}, {Message: "root"}}, false, false)

	out := buf.String()
	if !strings.Contains(out, "/pipeline: "+strings.Repeat("x", 77)+"...") {
		t.Errorf("long message not truncated: %q", out)
	}
	if !strings.Contains(out, "  /: root") {
		t.Errorf("empty path should print as /: %q", out)
	}
	if !strings.Contains(out, "Hint:") {
		t.Errorf("expected hint: %q", out)
	}
}

func TestPrintRunResult(t *testing.T) {
	start := time.Now()
	result := &pipeline.RunResult{
		DocumentID: "doc", Status: "success", StartedAt: start, CompletedAt: start,
		RootsBefore: 4, RootsAfter: 2, NodesBefore: 6, NodesAfter: 3,
	}

	var out, errOut bytes.Buffer
	PrintRunResult(&out, &errOut, result, nil, OutputOptions{})
	if !strings.Contains(out.String(), "Roots: 4 → 2") {
		t.Errorf("unexpected output: %q", out.String())
	}

	out.Reset()
	PrintRunResult(&out, &errOut, result, nil, OutputOptions{Quiet: true})
	if out.Len() != 0 {
		t.Errorf("quiet mode should print nothing, got %q", out.String())
	}

	result.Error = &pipeline.RunError{Code: "NOT_CONFIGURED", Message: "no steps", Handler: "sequence"}
	PrintRunResult(&out, &errOut, result, errors.New("no steps"), OutputOptions{})
	if !strings.Contains(errOut.String(), "Handler: sequence") || !strings.Contains(errOut.String(), "Code: NOT_CONFIGURED") {
		t.Errorf("unexpected error output: %q", errOut.String())
	}
}

func TestPrintDefinitionSummary(t *testing.T) {
	disabled := false
	def := &pipeline.Definition{
		Name: "cleanup", Version: "1",
		Validators: map[string]pipeline.ComponentConfig{"zip": {Type: "pattern"}},
		Handler: &pipeline.HandlerConfig{
			Type: "sequence",
			Children: []pipeline.HandlerConfig{
				{Type: "eliminateDuplicates", Description: "dedupe"},
				{Type: "conditional", Enabled: &disabled, Handler: &pipeline.HandlerConfig{Type: "selectUsingMajority"}},
			},
		},
	}
	var buf bytes.Buffer
	PrintDefinitionSummary(&buf, def)

	out := buf.String()
	for _, want := range []string{
		"Pipeline: cleanup (v1)",
		"Validators: [zip]",
		"    - sequence",
		"      - eliminateDuplicates (dedupe)",
		"      - conditional [disabled]",
		"        - selectUsingMajority",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestPrintSettingsRecord(t *testing.T) {
	stored := &persistence.Record{Type: "moveAndModify", Version: 1, Settings: map[string]interface{}{"query": "A/B"}}
	upgraded, err := persistence.Upgrade(stored)
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}

	var buf bytes.Buffer
	PrintSettingsRecord(&buf, stored, upgraded, OutputOptions{Verbose: true})
	out := buf.String()
	if !strings.Contains(out, "Version: 1 (upgraded to 3)") {
		t.Errorf("unexpected version line: %q", out)
	}
	if !strings.Contains(out, "query: A/B\n") || !strings.Contains(out, "deleteEmptyAncestors: false (default)") {
		t.Errorf("unexpected settings: %q", out)
	}
}
