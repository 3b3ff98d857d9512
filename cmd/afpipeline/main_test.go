package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/afpipeline/runtime/internal/cli"
	"github.com/afpipeline/runtime/internal/persistence"
	"github.com/afpipeline/runtime/pkg/attribute"
)

const dedupeConfig = `
pipeline:
  id: dedupe
  name: Dedupe
  version: "1.0.0"
  handler:
    type: sequence
    children:
      - type: eliminateDuplicates
        description: dedupe
`

const forestJSON = `{"attributes": [
  {"name": "Name", "value": {"text": "a"}},
  {"name": "Name", "value": {"text": "a"}},
  {"name": "Name", "value": {"text": "b"}}
]}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = execute(args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		file    string
		want    int
		wantOut string
	}{
		{"valid", dedupeConfig, "valid.yaml", cli.ExitSuccess, "Configuration is valid (format: yaml)"},
		{"parse error", `{"pipeline": `, "broken.json", cli.ExitParseError, "Parse errors"},
		{"unknown handler", `{"pipeline": {"name": "x", "version": "1", "handler": {"type": "bogus"}}}`, "bogus.json", cli.ExitValidationError, "Validation errors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			code, stdout, stderr := run(t, "", "validate", path)
			if code != tt.want {
				t.Fatalf("exit code = %d, want %d (stderr: %s)", code, tt.want, stderr)
			}
			if !strings.Contains(stdout+stderr, tt.wantOut) {
				t.Errorf("expected %q in output:\n%s%s", tt.wantOut, stdout, stderr)
			}
		})
	}
}

func TestValidate_VerboseSummary(t *testing.T) {
	path := writeFile(t, t.TempDir(), "p.yaml", dedupeConfig)
	code, stdout, _ := run(t, "", "validate", "--verbose", path)
	if code != cli.ExitSuccess {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout, "Pipeline: Dedupe (v1.0.0)") || !strings.Contains(stdout, "eliminateDuplicates (dedupe)") {
		t.Errorf("missing summary in:\n%s", stdout)
	}
}

func TestValidate_MissingFile(t *testing.T) {
	code, _, _ := run(t, "", "validate", filepath.Join(t.TempDir(), "missing.json"))
	if code != cli.ExitParseError {
		t.Errorf("exit code = %d, want %d", code, cli.ExitParseError)
	}
}

func TestRun_StdinToStdout(t *testing.T) {
	path := writeFile(t, t.TempDir(), "p.yaml", dedupeConfig)
	code, stdout, stderr := run(t, forestJSON, "run", path, "--doc-id", "doc-1")
	if code != cli.ExitSuccess {
		t.Fatalf("exit code = %d (stderr: %s)", code, stderr)
	}

	var forest attribute.Forest
	if err := json.Unmarshal([]byte(stdout), &forest); err != nil {
		t.Fatalf("stdout is not a forest: %v\n%s", err, stdout)
	}
	if forest.Len() != 2 {
		t.Errorf("roots = %d, want 2", forest.Len())
	}
	if !strings.Contains(stderr, "Roots: 3 → 2") {
		t.Errorf("summary should go to stderr when the forest uses stdout:\n%s", stderr)
	}
}

func TestRun_FilesAndState(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "p.yaml", dedupeConfig)
	in := writeFile(t, dir, "in.json", forestJSON)
	out := filepath.Join(dir, "out.yaml")
	stateDir := filepath.Join(dir, "state")

	code, stdout, stderr := run(t, "", "run", cfg, "-i", in, "-o", out,
		"--state-dir", stateDir, "--tag", "customer=acme", "--progress")
	if code != cli.ExitSuccess {
		t.Fatalf("exit code = %d (stderr: %s)", code, stderr)
	}
	if !strings.Contains(stdout, "Pipeline run completed") {
		t.Errorf("summary should go to stdout when writing a file:\n%s", stdout)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !strings.Contains(string(data), "attributes:") {
		t.Errorf("expected YAML forest, got:\n%s", data)
	}

	state, err := persistence.NewStateStore(stateDir).Load("dedupe")
	if err != nil || state == nil {
		t.Fatalf("state not recorded: %v", err)
	}
	if state.Runs != 1 {
		t.Errorf("Runs = %d, want 1", state.Runs)
	}
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "p.yaml", dedupeConfig)

	code, _, _ := run(t, forestJSON, "run", cfg, "--tag", "novalue")
	if code != cli.ExitValidationError {
		t.Errorf("bad tag: exit code = %d, want %d", code, cli.ExitValidationError)
	}

	code, _, _ = run(t, "{not json", "run", cfg)
	if code != cli.ExitRuntimeError {
		t.Errorf("bad forest: exit code = %d, want %d", code, cli.ExitRuntimeError)
	}

	code, _, _ = run(t, forestJSON, "run", cfg, "--format", "xml")
	if code != cli.ExitValidationError {
		t.Errorf("bad format: exit code = %d, want %d", code, cli.ExitValidationError)
	}

	broken := writeFile(t, dir, "broken.json", `{`)
	code, _, _ = run(t, forestJSON, "run", broken)
	if code != cli.ExitParseError {
		t.Errorf("broken config: exit code = %d, want %d", code, cli.ExitParseError)
	}
}

func TestSettings_Upgrade(t *testing.T) {
	path := writeFile(t, t.TempDir(), "move.json",
		`{"type": "moveAndModify", "version": 1, "settings": {"query": "A/B"}}`)

	code, stdout, stderr := run(t, "", "settings", "--write", path)
	if code != cli.ExitSuccess {
		t.Fatalf("exit code = %d (stderr: %s)", code, stderr)
	}
	if !strings.Contains(stdout, "Version: 1 (upgraded to 3)") {
		t.Errorf("unexpected output:\n%s", stdout)
	}

	rec, err := persistence.ReadRecord(path)
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if rec.Version != 3 {
		t.Errorf("saved version = %d, want 3", rec.Version)
	}
	if _, ok := rec.Settings["deleteEmptyAncestors"]; !ok {
		t.Error("upgraded record should carry defaults")
	}
}

func TestSettings_NewerVersion(t *testing.T) {
	path := writeFile(t, t.TempDir(), "move.json",
		`{"type": "moveAndModify", "version": 9, "settings": {}}`)

	code, _, stderr := run(t, "", "settings", path)
	if code != cli.ExitValidationError {
		t.Errorf("exit code = %d, want %d", code, cli.ExitValidationError)
	}
	if !strings.Contains(stderr, "found version 9") {
		t.Errorf("unexpected error output: %s", stderr)
	}
}

func TestVersion(t *testing.T) {
	code, stdout, _ := run(t, "", "version")
	if code != cli.ExitSuccess {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout, "Version: dev") {
		t.Errorf("unexpected output: %s", stdout)
	}
}

func TestUnknownCommand(t *testing.T) {
	code, _, _ := run(t, "", "bogus")
	if code != cli.ExitRuntimeError {
		t.Errorf("exit code = %d, want %d", code, cli.ExitRuntimeError)
	}
}
