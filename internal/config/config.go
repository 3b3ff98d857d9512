package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/afpipeline/runtime/pkg/pipeline"
)

// ErrInvalidConfig is wrapped by Load when a file fails parsing or validation.
var ErrInvalidConfig = errors.New("invalid pipeline configuration")

// Loader loads pipeline definitions from files.
type Loader struct {
	// basePath is prefixed to relative file names when set
	basePath string
}

// NewLoader creates a new configuration loader.
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// Load reads, validates and converts a pipeline configuration file.
// The returned Result is always non-nil so callers can report every error.
func (l *Loader) Load(file string) (*pipeline.Definition, *Result, error) {
	path := file
	if l.basePath != "" && !filepath.IsAbs(file) {
		path = filepath.Join(l.basePath, file)
	}

	result := ParseConfig(path)
	if !result.IsValid() {
		return nil, result, fmt.Errorf("%w: %w", ErrInvalidConfig, result.Err())
	}

	def, err := ConvertToDefinition(result.Data)
	if err != nil {
		return nil, result, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return def, result, nil
}
