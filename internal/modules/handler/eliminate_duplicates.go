package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// EliminateDuplicatesConfig represents the configuration for EliminateDuplicates.
type EliminateDuplicatesConfig struct {
	// IgnoreChildren compares only name, type and text when true
	IgnoreChildren bool `json:"ignoreChildren,omitempty"`
	// Match overrides the duplicate test; nil uses attribute.NonSpatialMatch
	Match MatchFunc `json:"-"`
}

// EliminateDuplicates removes later root attributes that match an earlier one.
type EliminateDuplicates struct {
	match MatchFunc
}

// NewEliminateDuplicatesFromConfig creates the handler.
func NewEliminateDuplicatesFromConfig(config EliminateDuplicatesConfig) (*EliminateDuplicates, error) {
	match := config.Match
	if match == nil {
		match = attribute.NonSpatialMatch
		if config.IgnoreChildren {
			match = shallowMatch
		}
	}
	return &EliminateDuplicates{match: match}, nil
}

func shallowMatch(a, b *attribute.Attribute) bool {
	return strings.EqualFold(a.Name, b.Name) &&
		strings.EqualFold(a.Type, b.Type) &&
		a.Value.Text == b.Value.Text
}

// Process implements Handler.
func (h *EliminateDuplicates) Process(_ context.Context, forest *attribute.Forest, _ *document.Document) error {
	removed := 0
	for i := 0; i < forest.Len(); i++ {
		for j := i + 1; j < forest.Len(); {
			if h.match(forest.At(i), forest.At(j)) {
				forest.RemoveAt(j)
				removed++
				continue
			}
			j++
		}
	}
	if removed > 0 {
		logger.Debug("duplicates eliminated", slog.Int("removed", removed))
	}
	return nil
}

// ParseEliminateDuplicatesConfig parses a raw configuration map.
func ParseEliminateDuplicatesConfig(config map[string]interface{}) (EliminateDuplicatesConfig, error) {
	var cfg EliminateDuplicatesConfig
	if v, ok := getBool(config, "ignoreChildren"); ok {
		cfg.IgnoreChildren = v
	}
	return cfg, nil
}

var _ Handler = (*EliminateDuplicates)(nil)
