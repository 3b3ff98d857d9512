package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/query"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// TargetKind selects what RunObjectOnQuery runs on the matches.
type TargetKind string

// Target kinds.
const (
	TargetModifier TargetKind = "modifier"
	TargetSplitter TargetKind = "splitter"
	TargetHandler  TargetKind = "handler"
)

// Target is the object run on the query matches. Only the field matching
// Kind is used.
type Target struct {
	Kind     TargetKind
	Modifier ValueModifier
	Splitter Splitter
	Handler  Handler
}

// RunObjectOnQueryConfig represents the configuration for RunObjectOnQuery.
type RunObjectOnQueryConfig struct {
	Query  string
	Target *Target
	// Engine defaults to query.Default()
	Engine query.Engine
}

// RunObjectOnQuery runs a modifier, splitter or handler on the attributes
// matching a query.
type RunObjectOnQuery struct {
	query  string
	target *Target
	engine query.Engine
}

// NewRunObjectOnQueryFromConfig creates the handler.
func NewRunObjectOnQueryFromConfig(config RunObjectOnQueryConfig) (*RunObjectOnQuery, error) {
	engine := config.Engine
	if engine == nil {
		engine = query.Default()
	}
	if config.Query == "" {
		return nil, configError(TypeRunObjectOnQuery, "'query' is required")
	}
	if err := engine.Validate(config.Query); err != nil {
		return nil, err
	}
	return &RunObjectOnQuery{query: config.Query, target: config.Target, engine: engine}, nil
}

// Process implements Handler.
func (h *RunObjectOnQuery) Process(ctx context.Context, forest *attribute.Forest, doc *document.Document) error {
	if h.target == nil {
		return errhandling.NewNotConfigured(TypeRunObjectOnQuery, "no target configured")
	}
	if err := h.target.check(); err != nil {
		return err
	}

	matches, err := h.engine.Query(forest, h.query)
	if err != nil {
		return err
	}
	logger.Debug("running object on query",
		slog.String("query", h.query),
		slog.String("target", string(h.target.Kind)),
		slog.Int("matches", len(matches)),
	)

	switch h.target.Kind {
	case TargetModifier:
		for _, m := range matches {
			if err := h.target.Modifier.Modify(ctx, m, doc); err != nil {
				return err
			}
		}
	case TargetSplitter:
		for _, m := range matches {
			parts, err := h.target.Splitter.Split(ctx, m, doc)
			if err != nil {
				return err
			}
			if len(parts) > 0 {
				forest.Replace(m, parts...)
			}
		}
	case TargetHandler:
		return runOnSubset(ctx, h.target.Handler, forest, matches, doc)
	}
	return nil
}

func (t *Target) check() error {
	var missing bool
	switch t.Kind {
	case TargetModifier:
		missing = t.Modifier == nil
	case TargetSplitter:
		missing = t.Splitter == nil
	case TargetHandler:
		missing = t.Handler == nil
	default:
		return errhandling.NewContractViolation(TypeRunObjectOnQuery, fmt.Sprintf("unknown target kind %q", t.Kind))
	}
	if missing {
		return errhandling.NewContractViolation(TypeRunObjectOnQuery,
			fmt.Sprintf("target of kind %q does not provide a %s", t.Kind, t.Kind))
	}
	return nil
}

// runOnSubset runs handler on a forest aliasing matches, then applies root
// additions and removals back to the full forest by ID.
func runOnSubset(ctx context.Context, handler Handler, forest *attribute.Forest, matches []*attribute.Attribute, doc *document.Document) error {
	subset := attribute.NewForest(matches...)
	before := make(map[uuid.UUID]bool, len(matches))
	for _, m := range matches {
		before[m.ID] = true
	}

	if err := handler.Process(ctx, subset, doc); err != nil {
		return err
	}

	after := make(map[uuid.UUID]bool, subset.Len())
	for _, a := range subset.Roots() {
		after[a.ID] = true
	}

	removed, added := 0, 0
	for _, m := range matches {
		if !after[m.ID] && forest.Remove(m) {
			removed++
		}
	}
	for _, a := range subset.Roots() {
		if !before[a.ID] {
			forest.Append(a)
			added++
		}
	}
	logger.Debug("subset reconciled", slog.Int("removed", removed), slog.Int("added", added))
	return nil
}

var _ Handler = (*RunObjectOnQuery)(nil)
