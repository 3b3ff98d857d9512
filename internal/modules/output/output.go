// Package output writes the forests produced by pipeline runs.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/modules/input"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Destination receives the forest of a run.
type Destination interface {
	Write(ctx context.Context, forest *attribute.Forest) error
}

// FileConfig configures a FileDestination.
type FileConfig struct {
	// Path is the output file, or "-" for standard output
	Path string `json:"path"`
	// Format is json or yaml; detected from the extension when empty
	Format string `json:"format,omitempty"`
}

// FileDestination writes a forest to a file or standard output.
// Files are written to a temporary file first, then renamed.
type FileDestination struct {
	config FileConfig
	stdout io.Writer
}

// NewFileDestination creates a FileDestination.
func NewFileDestination(config FileConfig) (*FileDestination, error) {
	if config.Path == "" {
		return nil, errhandling.NewInvalidConfiguration("output", "'path' is required", nil)
	}
	if config.Format == "" {
		config.Format = input.DetectFormat(config.Path, nil)
	}
	if config.Format != input.FormatJSON && config.Format != input.FormatYAML {
		return nil, errhandling.NewInvalidConfiguration("output", fmt.Sprintf("unsupported forest format %q", config.Format), nil)
	}
	return &FileDestination{config: config, stdout: os.Stdout}, nil
}

// WithStdout replaces standard output, for tests.
func (d *FileDestination) WithStdout(w io.Writer) *FileDestination {
	d.stdout = w
	return d
}

// Write implements Destination.
func (d *FileDestination) Write(ctx context.Context, forest *attribute.Forest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(forest, d.config.Format)
	if err != nil {
		return err
	}

	if d.config.Path == input.StdioPath {
		_, err = d.stdout.Write(data)
		return err
	}
	if err := writeAtomic(d.config.Path, data); err != nil {
		return errhandling.ClassifyError(err)
	}

	logger.Debug("forest written",
		slog.String("path", d.config.Path),
		slog.String("format", d.config.Format),
		slog.Int("roots", forest.Len()),
	)
	return nil
}

// Encode serializes a forest as indented JSON or YAML.
func Encode(forest *attribute.Forest, format string) ([]byte, error) {
	data, err := json.MarshalIndent(forest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding forest: %w", err)
	}
	if format != input.FormatYAML {
		return append(data, '\n'), nil
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encoding forest: %w", err)
	}
	return yaml.Marshal(doc)
}

func writeAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

var _ Destination = (*FileDestination)(nil)
