// Package selector provides the attribute selectors used by
// RemoveSubAttributes.
package selector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/query"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Selector type strings used in pipeline configurations.
const (
	TypeQuery  = "query"
	TypeFilter = "filter"
)

// QueryConfig represents the configuration for QuerySelector.
type QueryConfig struct {
	Query string `json:"query"`
	// Engine defaults to query.Default()
	Engine query.Engine `json:"-"`
}

// QuerySelector selects the attributes matching a query.
type QuerySelector struct {
	query  string
	engine query.Engine
}

// NewQueryFromConfig creates the selector.
func NewQueryFromConfig(config QueryConfig) (*QuerySelector, error) {
	engine := config.Engine
	if engine == nil {
		engine = query.Default()
	}
	if config.Query == "" {
		return nil, errhandling.NewInvalidConfiguration(TypeQuery, "'query' is required", nil)
	}
	if err := engine.Validate(config.Query); err != nil {
		return nil, err
	}
	return &QuerySelector{query: config.Query, engine: engine}, nil
}

// Select implements handler.AttributeSelector.
func (s *QuerySelector) Select(_ context.Context, forest *attribute.Forest, _ *document.Document) ([]*attribute.Attribute, error) {
	return s.engine.Query(forest, s.query)
}

// FilterConfig represents the configuration for FilterSelector.
type FilterConfig struct {
	Query string `json:"query"`
	// Expression is an expr-lang boolean over name, type, value, spatial,
	// childCount and doc
	Expression string `json:"expression"`
	Engine     query.Engine `json:"-"`
}

// FilterSelector selects the query matches for which an expression holds.
type FilterSelector struct {
	QuerySelector
	expression string
	program    *vm.Program
}

// NewFilterFromConfig compiles the expression and creates the selector.
func NewFilterFromConfig(config FilterConfig) (*FilterSelector, error) {
	base, err := NewQueryFromConfig(QueryConfig{Query: config.Query, Engine: config.Engine})
	if err != nil {
		return nil, err
	}
	if config.Expression == "" {
		return nil, errhandling.NewInvalidConfiguration(TypeFilter, "'expression' is required", nil)
	}
	program, err := expr.Compile(config.Expression, expr.Env(filterEnv(nil, nil)), expr.AsBool())
	if err != nil {
		return nil, errhandling.NewInvalidConfiguration(TypeFilter,
			fmt.Sprintf("invalid expression %q", config.Expression), err)
	}
	return &FilterSelector{QuerySelector: *base, expression: config.Expression, program: program}, nil
}

// Select implements handler.AttributeSelector. Matches for which the
// expression fails to evaluate are not selected.
func (s *FilterSelector) Select(ctx context.Context, forest *attribute.Forest, doc *document.Document) ([]*attribute.Attribute, error) {
	matches, err := s.QuerySelector.Select(ctx, forest, doc)
	if err != nil {
		return nil, err
	}
	var out []*attribute.Attribute
	for _, m := range matches {
		result, err := expr.Run(s.program, filterEnv(m, doc))
		if err != nil {
			logger.Debug("filter expression failed",
				slog.String("expression", s.expression),
				slog.String("attribute", m.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok, _ := result.(bool); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func filterEnv(a *attribute.Attribute, doc *document.Document) map[string]interface{} {
	env := query.AttributeEnv(a)
	env["doc"] = doc.Env()
	return env
}

// ParseQueryConfig parses a raw configuration map.
func ParseQueryConfig(cfg map[string]interface{}) (QueryConfig, error) {
	var config QueryConfig
	q, ok := cfg["query"].(string)
	if !ok || q == "" {
		return config, errhandling.NewInvalidConfiguration(TypeQuery, "'query' is required and must be a non-empty string", nil)
	}
	config.Query = q
	return config, nil
}

// ParseFilterConfig parses a raw configuration map.
func ParseFilterConfig(cfg map[string]interface{}) (FilterConfig, error) {
	var config FilterConfig
	q, err := ParseQueryConfig(cfg)
	if err != nil {
		return config, err
	}
	config.Query = q.Query
	e, ok := cfg["expression"].(string)
	if !ok || e == "" {
		return config, errhandling.NewInvalidConfiguration(TypeFilter, "'expression' is required and must be a non-empty string", nil)
	}
	config.Expression = e
	return config, nil
}
