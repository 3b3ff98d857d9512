package modifier

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Case conversions.
const (
	CaseUpper = "upper"
	CaseLower = "lower"
	CaseTitle = "title"
)

// CaseConfig represents the configuration for CaseModifier.
type CaseConfig struct {
	Mode string `json:"mode"`
	// Language is a BCP 47 tag; empty means language-neutral rules
	Language string `json:"language,omitempty"`
}

// CaseModifier converts the text of an attribute to upper, lower or title case.
type CaseModifier struct {
	mode string
	tag  language.Tag
}

// NewCaseFromConfig creates the modifier.
func NewCaseFromConfig(config CaseConfig) (*CaseModifier, error) {
	mode := strings.ToLower(config.Mode)
	switch mode {
	case CaseUpper, CaseLower, CaseTitle:
	default:
		return nil, errhandling.NewInvalidConfiguration(TypeCase,
			fmt.Sprintf("invalid mode %q (expected upper, lower or title)", config.Mode), nil)
	}

	tag := language.Und
	if config.Language != "" {
		parsed, err := language.Parse(config.Language)
		if err != nil {
			return nil, errhandling.NewInvalidConfiguration(TypeCase, fmt.Sprintf("invalid language %q", config.Language), err)
		}
		tag = parsed
	}
	return &CaseModifier{mode: mode, tag: tag}, nil
}

// Modify implements handler.ValueModifier. Attributes without text are unchanged.
func (m *CaseModifier) Modify(_ context.Context, attr *attribute.Attribute, _ *document.Document) error {
	text := attr.Text()
	if text == "" {
		return nil
	}
	// Casers are stateful and not safe for concurrent use.
	var c cases.Caser
	switch m.mode {
	case CaseUpper:
		c = cases.Upper(m.tag)
	case CaseLower:
		c = cases.Lower(m.tag)
	default:
		c = cases.Title(m.tag)
	}
	if out := c.String(text); out != text {
		attr.SetText(out)
	}
	return nil
}

// ParseCaseConfig parses a raw configuration map.
func ParseCaseConfig(cfg map[string]interface{}) (CaseConfig, error) {
	var config CaseConfig
	mode, ok := cfg["mode"].(string)
	if !ok || mode == "" {
		return config, errhandling.NewInvalidConfiguration(TypeCase, "'mode' is required", nil)
	}
	config.Mode = mode
	config.Language, _ = cfg["language"].(string)
	return config, nil
}
