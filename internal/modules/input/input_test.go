package input

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/afpipeline/runtime/internal/errhandling"
)

const forestJSON = `{"attributes": [
  {"name": "Person", "type": "Billing", "value": {"text": "Jo Ng"},
   "children": [{"name": "First", "value": {"text": "Jo"}}]},
  {"name": "Zip", "value": {"text": "12345", "spatial": true}, "validator": "zip"}
]}`

const forestYAML = `
attributes:
  - name: Person
    type: Billing
    value: {text: Jo Ng}
    children:
      - name: First
        value: {text: Jo}
  - name: Zip
    value: {text: "12345", spatial: true}
    validator: zip
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

func TestFileSource_Read(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"json", "f.json", forestJSON},
		{"yaml", "f.yaml", forestYAML},
		{"json by content", "f.dat", forestJSON},
		{"yaml by content", "f.dat", forestYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewFileSource(FileConfig{Path: writeFile(t, tt.file, tt.content)})
			if err != nil {
				t.Fatalf("NewFileSource() error = %v", err)
			}

			forest, err := src.Read(context.Background())
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if forest.Len() != 2 {
				t.Fatalf("Len() = %d, want 2", forest.Len())
			}
			if forest.Count() != 3 {
				t.Errorf("Count() = %d, want 3", forest.Count())
			}

			person := forest.At(0)
			if person.Name != "Person" || person.Type != "Billing" || person.Text() != "Jo Ng" {
				t.Errorf("first root = %s@%s=%q, want Person@Billing=\"Jo Ng\"", person.Name, person.Type, person.Text())
			}
			if person.ID == person.Children[0].ID {
				t.Error("parent and child share an ID")
			}

			zip := forest.At(1)
			if !zip.Value.HasSpatialInfo() {
				t.Error("Zip lost its spatial info")
			}
			if zip.Validator != "zip" {
				t.Errorf("Validator = %q, want %q", zip.Validator, "zip")
			}
		})
	}
}

func TestFileSource_Stdin(t *testing.T) {
	src, err := NewFileSource(FileConfig{Path: StdioPath})
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}
	src.WithStdin(strings.NewReader(`[{"name": "A", "value": {"text": "x"}}]`))

	forest, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if forest.Len() != 1 || forest.At(0).Text() != "x" {
		t.Errorf("Read() = %d roots, want one root A=x", forest.Len())
	}
}

func TestFileSource_ConfigErrors(t *testing.T) {
	for _, cfg := range []FileConfig{{}, {Path: "f", Format: "xml"}} {
		if _, err := NewFileSource(cfg); !errhandling.IsInvalidConfiguration(err) {
			t.Errorf("NewFileSource(%+v) error = %v, want invalid configuration", cfg, err)
		}
	}
}

func TestFileSource_ReadErrors(t *testing.T) {
	src, err := NewFileSource(FileConfig{Path: filepath.Join(t.TempDir(), "missing.json")})
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}
	_, err = src.Read(context.Background())
	if got := errhandling.GetErrorCategory(err); got != errhandling.CategoryIO {
		t.Errorf("missing file category = %s, want %s", got, errhandling.CategoryIO)
	}

	src, err = NewFileSource(FileConfig{Path: writeFile(t, "bad.json", `[{"name": "1bad", "value": {"text": ""}}]`)})
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}
	_, err = src.Read(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid attribute name") {
		t.Errorf("bad name: error = %v, want invalid attribute name", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err = src.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled read: error = %v, want context.Canceled", err)
	}
}

func TestDecode_Empty(t *testing.T) {
	forest, err := Decode([]byte("  "), FormatJSON)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if forest.Len() != 0 {
		t.Errorf("Len() = %d, want 0", forest.Len())
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		content string
		want    string
	}{
		{"a.JSON", "", FormatJSON},
		{"a.yml", "", FormatYAML},
		{"-", " [1]", FormatJSON},
		{"-", "attributes: []", FormatYAML},
	}
	for _, tt := range tests {
		var data []byte
		if tt.content != "" {
			data = []byte(tt.content)
		}
		if got := DetectFormat(tt.path, data); got != tt.want {
			t.Errorf("DetectFormat(%q, %q) = %s, want %s", tt.path, tt.content, got, tt.want)
		}
	}
}
