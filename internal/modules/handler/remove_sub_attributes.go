package handler

import (
	"context"
	"log/slog"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Score comparison operators.
const (
	OpEqual        = "="
	OpNotEqual     = "!="
	OpLess         = "<"
	OpGreater      = ">"
	OpLessEqual    = "<="
	OpGreaterEqual = ">="
)

// Score reference modes.
const (
	CompareFixed = "fixed"
	CompareMin   = "min"
	CompareMax   = "max"
)

// RemoveSubAttributesConfig represents the configuration for RemoveSubAttributes.
type RemoveSubAttributesConfig struct {
	// Selector picks the candidate attributes
	Selector AttributeSelector `json:"-"`
	// ConditionalRemove removes only attributes whose score satisfies the comparison
	ConditionalRemove bool `json:"conditionalRemove,omitempty"`
	// Scorer rates candidates in conditional mode
	Scorer DataScorer `json:"-"`
	// Operator is one of = != < > <= >=
	Operator string `json:"operator,omitempty"`
	// CompareTo is "fixed" (default), "min" or "max"
	CompareTo string `json:"compareTo,omitempty"`
	// Threshold is the fixed reference score (0..100)
	Threshold int `json:"threshold,omitempty"`
}

// RemoveSubAttributes removes selected attributes, optionally gated by score.
type RemoveSubAttributes struct {
	config RemoveSubAttributesConfig
}

// NewRemoveSubAttributesFromConfig creates the handler. A missing selector
// or scorer is reported when the handler runs.
func NewRemoveSubAttributesFromConfig(config RemoveSubAttributesConfig) (*RemoveSubAttributes, error) {
	if config.ConditionalRemove {
		if config.Operator == "" {
			config.Operator = OpEqual
		}
		if !isOperator(config.Operator) {
			return nil, configError(TypeRemoveSubAttributes, "invalid operator %q", config.Operator)
		}
		if config.CompareTo == "" {
			config.CompareTo = CompareFixed
		}
		if !equalFoldAny(config.CompareTo, CompareFixed, CompareMin, CompareMax) {
			return nil, configError(TypeRemoveSubAttributes, "invalid compareTo %q", config.CompareTo)
		}
		if config.Threshold < 0 || config.Threshold > 100 {
			return nil, configError(TypeRemoveSubAttributes, "threshold %d out of range 0..100", config.Threshold)
		}
	}
	return &RemoveSubAttributes{config: config}, nil
}

func isOperator(op string) bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpGreater, OpLessEqual, OpGreaterEqual:
		return true
	}
	return false
}

// Compare applies op to score and reference.
func Compare(score int, op string, reference int) bool {
	switch op {
	case OpEqual:
		return score == reference
	case OpNotEqual:
		return score != reference
	case OpLess:
		return score < reference
	case OpGreater:
		return score > reference
	case OpLessEqual:
		return score <= reference
	case OpGreaterEqual:
		return score >= reference
	}
	return false
}

// Process implements Handler.
func (h *RemoveSubAttributes) Process(ctx context.Context, forest *attribute.Forest, doc *document.Document) error {
	if h.config.Selector == nil {
		return errhandling.NewNotConfigured(TypeRemoveSubAttributes, "no attribute selector configured")
	}
	if h.config.ConditionalRemove && h.config.Scorer == nil {
		return errhandling.NewNotConfigured(TypeRemoveSubAttributes, "no data scorer configured for conditional removal")
	}

	selected, err := h.config.Selector.Select(ctx, forest, doc)
	if err != nil {
		return err
	}

	doomed := selected
	if h.config.ConditionalRemove {
		doomed = h.filterByScore(ctx, selected, doc)
	}

	removed := 0
	for _, attr := range doomed {
		if forest.Remove(attr) {
			removed++
		}
	}
	logger.Debug("sub-attributes removed",
		slog.Int("selected", len(selected)),
		slog.Int("removed", removed),
	)
	return nil
}

type scored struct {
	attr  *attribute.Attribute
	score int
}

// filterByScore returns the selected attributes satisfying the comparison.
// Unscored attributes are never removed.
func (h *RemoveSubAttributes) filterByScore(ctx context.Context, selected []*attribute.Attribute, doc *document.Document) []*attribute.Attribute {
	cache := make([]scored, 0, len(selected))
	for _, attr := range selected {
		if s, ok := h.config.Scorer.Score(ctx, attr, doc); ok {
			cache = append(cache, scored{attr: attr, score: s})
		}
	}
	if len(cache) == 0 {
		return nil
	}

	reference := h.config.Threshold
	switch {
	case equalFoldAny(h.config.CompareTo, CompareMin):
		reference = cache[0].score
		for _, c := range cache[1:] {
			reference = min(reference, c.score)
		}
	case equalFoldAny(h.config.CompareTo, CompareMax):
		reference = cache[0].score
		for _, c := range cache[1:] {
			reference = max(reference, c.score)
		}
	}

	var out []*attribute.Attribute
	for _, c := range cache {
		if Compare(c.score, h.config.Operator, reference) {
			out = append(out, c.attr)
		}
	}
	return out
}

// ParseRemoveSubAttributesConfig parses the scalar fields of a raw
// configuration map. Selector and scorer are resolved by the factory.
func ParseRemoveSubAttributesConfig(config map[string]interface{}) (RemoveSubAttributesConfig, error) {
	var cfg RemoveSubAttributesConfig
	cfg.ConditionalRemove, _ = getBool(config, "conditionalRemove")
	cfg.Operator, _ = getString(config, "operator")
	cfg.CompareTo, _ = getString(config, "compareTo")
	if v, ok := getInt(config, "threshold"); ok {
		cfg.Threshold = v
	}
	return cfg, nil
}

var _ Handler = (*RemoveSubAttributes)(nil)
