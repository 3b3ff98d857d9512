// Package input reads the attribute forests pipelines process.
// Forests are stored as {"attributes": [...]} in JSON or YAML; a bare list
// of attributes is accepted too.
package input

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Forest encodings.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// StdioPath selects standard input (or output) instead of a file.
const StdioPath = "-"

// Source provides the forest of a run.
type Source interface {
	// Read returns the forest. The context can be used to cancel long reads.
	Read(ctx context.Context) (*attribute.Forest, error)
}

// FileConfig configures a FileSource.
type FileConfig struct {
	// Path is the forest file, or "-" for standard input
	Path string `json:"path"`
	// Format is json or yaml; detected from the extension, then content, when empty
	Format string `json:"format,omitempty"`
}

// FileSource reads a forest from a file or standard input.
type FileSource struct {
	config FileConfig
	stdin  io.Reader
}

// NewFileSource creates a FileSource.
func NewFileSource(config FileConfig) (*FileSource, error) {
	if config.Path == "" {
		return nil, errhandling.NewInvalidConfiguration("input", "'path' is required", nil)
	}
	if config.Format != "" && config.Format != FormatJSON && config.Format != FormatYAML {
		return nil, errhandling.NewInvalidConfiguration("input", fmt.Sprintf("unsupported forest format %q", config.Format), nil)
	}
	return &FileSource{config: config, stdin: os.Stdin}, nil
}

// WithStdin replaces standard input, for tests.
func (s *FileSource) WithStdin(r io.Reader) *FileSource {
	s.stdin = r
	return s
}

// Read implements Source.
func (s *FileSource) Read(ctx context.Context) (*attribute.Forest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		data []byte
		err  error
	)
	if s.config.Path == StdioPath {
		data, err = io.ReadAll(s.stdin)
	} else {
		data, err = os.ReadFile(s.config.Path)
	}
	if err != nil {
		return nil, errhandling.ClassifyError(err)
	}

	format := s.config.Format
	if format == "" {
		format = DetectFormat(s.config.Path, data)
	}
	forest, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("reading forest from %s: %w", s.config.Path, err)
	}

	logger.Debug("forest read",
		slog.String("path", s.config.Path),
		slog.String("format", format),
		slog.Int("roots", forest.Len()),
		slog.Int("nodes", forest.Count()),
	)
	return forest, nil
}

// DetectFormat picks the forest format from the file extension, falling
// back to content: JSON when it starts with '{' or '[', YAML otherwise.
func DetectFormat(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") || trimmed == "" {
		return FormatJSON
	}
	return FormatYAML
}

// Decode parses a forest. YAML is converted to its JSON form first so both
// formats share the attribute encoding.
func Decode(data []byte, format string) (*attribute.Forest, error) {
	if strings.TrimSpace(string(data)) == "" {
		return attribute.NewForest(), nil
	}

	if format == FormatYAML {
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding YAML forest: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("converting YAML forest: %w", err)
		}
		data = converted
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		data = []byte(`{"attributes":` + trimmed + `}`)
	}

	forest := attribute.NewForest()
	if err := json.Unmarshal(data, forest); err != nil {
		return nil, err
	}
	if err := checkNames(forest); err != nil {
		return nil, err
	}
	return forest, nil
}

// checkNames rejects attributes whose name is not a valid identifier.
func checkNames(f *attribute.Forest) error {
	var bad string
	f.Walk(func(a, _ *attribute.Attribute, _ int) bool {
		if !attribute.IsValidName(a.Name) {
			bad = a.Name
			return false
		}
		return true
	})
	if bad != "" {
		return fmt.Errorf("invalid attribute name %q", bad)
	}
	return nil
}

var _ Source = (*FileSource)(nil)
