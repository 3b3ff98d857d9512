package modifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// DefaultDelimiter splits on commas and semicolons.
const DefaultDelimiter = `[,;]`

// DelimiterConfig represents the configuration for DelimiterSplitter.
type DelimiterConfig struct {
	// Pattern is a regular expression matching the delimiters
	Pattern string `json:"pattern,omitempty"`
	// KeepWhitespace disables trimming of the parts
	KeepWhitespace bool `json:"keepWhitespace,omitempty"`
}

// DelimiterSplitter splits the text of an attribute on a delimiter pattern.
// Empty parts are dropped; a text yielding fewer than two parts is not split.
type DelimiterSplitter struct {
	pattern *regexp.Regexp
	trim    bool
}

// NewDelimiterFromConfig creates the splitter.
func NewDelimiterFromConfig(config DelimiterConfig) (*DelimiterSplitter, error) {
	pattern := config.Pattern
	if pattern == "" {
		pattern = DefaultDelimiter
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errhandling.NewInvalidConfiguration(TypeDelimiter, fmt.Sprintf("invalid pattern %q", pattern), err)
	}
	return &DelimiterSplitter{pattern: re, trim: !config.KeepWhitespace}, nil
}

// Split implements handler.Splitter.
func (s *DelimiterSplitter) Split(_ context.Context, attr *attribute.Attribute, _ *document.Document) ([]*attribute.Attribute, error) {
	var parts []string
	for _, p := range s.pattern.Split(attr.Text(), -1) {
		if s.trim {
			p = strings.TrimSpace(p)
		}
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return nil, nil
	}
	return newParts(attr, parts), nil
}

// ParseDelimiterConfig parses a raw configuration map.
func ParseDelimiterConfig(cfg map[string]interface{}) (DelimiterConfig, error) {
	var config DelimiterConfig
	config.Pattern, _ = cfg["pattern"].(string)
	config.KeepWhitespace, _ = cfg["keepWhitespace"].(bool)
	return config, nil
}
