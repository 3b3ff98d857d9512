package modifier

import (
	"context"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/template"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// SetConfig represents the configuration for SetModifier. Each field is a
// template over attr, child and doc, e.g. "{{child.Last}}, {{child.First}}"
// or "{{doc.sourceName}}". Empty fields are not changed.
type SetConfig struct {
	Value string `json:"value,omitempty"`
	Type  string `json:"type,omitempty"`
}

// SetModifier sets the value and/or type of an attribute from templates.
type SetModifier struct {
	config    SetConfig
	evaluator *template.Evaluator
}

// NewSetFromConfig validates the templates and creates the modifier.
func NewSetFromConfig(config SetConfig) (*SetModifier, error) {
	if config.Value == "" && config.Type == "" {
		return nil, errhandling.NewInvalidConfiguration(TypeSet, "'value' or 'type' is required", nil)
	}
	for _, t := range []string{config.Value, config.Type} {
		if err := template.ValidateSyntax(t); err != nil {
			return nil, errhandling.NewInvalidConfiguration(TypeSet, "invalid template", err)
		}
	}
	return &SetModifier{config: config, evaluator: template.NewEvaluator()}, nil
}

// Modify implements handler.ValueModifier.
func (m *SetModifier) Modify(_ context.Context, attr *attribute.Attribute, doc *document.Document) error {
	data := map[string]interface{}{
		"attr":  attrData(attr),
		"child": childData(attr),
		"doc":   doc.Env(),
	}
	if m.config.Type != "" {
		attr.Type = m.evaluator.Evaluate(m.config.Type, data)
	}
	if m.config.Value != "" {
		attr.SetText(m.evaluator.Evaluate(m.config.Value, data))
	}
	return nil
}

// ParseSetConfig parses a raw configuration map.
func ParseSetConfig(cfg map[string]interface{}) (SetConfig, error) {
	var config SetConfig
	config.Value, _ = cfg["value"].(string)
	config.Type, _ = cfg["type"].(string)
	if config.Value == "" && config.Type == "" {
		return config, errhandling.NewInvalidConfiguration(TypeSet, "'value' or 'type' is required", nil)
	}
	return config, nil
}
