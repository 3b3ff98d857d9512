package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/query"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// DefaultPersonName is the attribute name reformatted in sub-attributes by default.
const DefaultPersonName = "Person"

// ReformatPersonNamesConfig represents the configuration for ReformatPersonNames.
type ReformatPersonNamesConfig struct {
	// Query selects the person attributes
	Query string `json:"query"`
	// Format is the name format, e.g. "%Last, %First< %Middle>"
	Format string `json:"format"`
	// ReformatSubAttributes also reformats nested person attributes, deepest first
	ReformatSubAttributes bool `json:"reformatSubAttributes,omitempty"`
	// PersonNames are the names of nested person attributes (default "Person")
	PersonNames []string `json:"personNames,omitempty"`
	// Engine defaults to query.Default()
	Engine query.Engine `json:"-"`
}

// ReformatPersonNames rewrites the value of person attributes from their
// name-part children.
type ReformatPersonNames struct {
	query       string
	format      *NameFormat
	recursive   bool
	personNames map[string]bool
	engine      query.Engine
}

// NewReformatPersonNamesFromConfig creates the handler.
func NewReformatPersonNamesFromConfig(config ReformatPersonNamesConfig) (*ReformatPersonNames, error) {
	engine := config.Engine
	if engine == nil {
		engine = query.Default()
	}
	if config.Query == "" {
		return nil, configError(TypeReformatPersonNames, "'query' is required")
	}
	if err := engine.Validate(config.Query); err != nil {
		return nil, err
	}
	format, err := ParseNameFormat(config.Format)
	if err != nil {
		return nil, errhandling.NewInvalidConfiguration(TypeReformatPersonNames, "invalid format", err)
	}

	names := config.PersonNames
	if len(names) == 0 {
		names = []string{DefaultPersonName}
	}
	personNames := make(map[string]bool, len(names))
	for _, n := range names {
		personNames[strings.ToLower(n)] = true
	}

	return &ReformatPersonNames{
		query:       config.Query,
		format:      format,
		recursive:   config.ReformatSubAttributes,
		personNames: personNames,
		engine:      engine,
	}, nil
}

// Process implements Handler.
func (h *ReformatPersonNames) Process(_ context.Context, forest *attribute.Forest, _ *document.Document) error {
	matches, err := h.engine.Query(forest, h.query)
	if err != nil {
		return err
	}
	changed := 0
	for _, attr := range matches {
		if h.recursive {
			for _, child := range attr.Children {
				changed += h.reformatNested(child)
			}
		}
		if h.reformat(attr) {
			changed++
		}
	}
	logger.Debug("person names reformatted",
		slog.Int("matches", len(matches)),
		slog.Int("changed", changed),
	)
	return nil
}

// reformatNested reformats person attributes under and including attr, deepest first.
func (h *ReformatPersonNames) reformatNested(attr *attribute.Attribute) int {
	changed := 0
	for _, child := range attr.Children {
		changed += h.reformatNested(child)
	}
	if h.personNames[strings.ToLower(attr.Name)] && h.reformat(attr) {
		changed++
	}
	return changed
}

func (h *ReformatPersonNames) reformat(attr *attribute.Attribute) bool {
	parts := make(map[string]string, len(attr.Children))
	for _, child := range attr.Children {
		key := strings.ToLower(child.Name)
		if _, seen := parts[key]; !seen {
			parts[key] = child.Text()
		}
	}
	out, ok := h.format.Render(func(name string) (string, bool) {
		v, ok := parts[strings.ToLower(name)]
		return v, ok
	})
	if !ok {
		return false
	}
	attr.SetText(out)
	return true
}

// ParseReformatPersonNamesConfig parses a raw configuration map.
func ParseReformatPersonNamesConfig(config map[string]interface{}) (ReformatPersonNamesConfig, error) {
	var cfg ReformatPersonNamesConfig
	q, ok := getString(config, "query")
	if !ok || q == "" {
		return cfg, configError(TypeReformatPersonNames, "'query' is required and must be a non-empty string")
	}
	cfg.Query = q
	f, ok := getString(config, "format")
	if !ok || f == "" {
		return cfg, configError(TypeReformatPersonNames, "'format' is required and must be a non-empty string")
	}
	cfg.Format = f
	cfg.ReformatSubAttributes, _ = getBool(config, "reformatSubAttributes")
	if names, ok := getStringSlice(config, "personNames"); ok {
		cfg.PersonNames = names
	}
	return cfg, nil
}

var _ Handler = (*ReformatPersonNames)(nil)
