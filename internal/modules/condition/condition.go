// Package condition provides the predicates evaluated by
// ConditionalOutputHandler.
package condition

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/modules/handler"
	"github.com/afpipeline/runtime/internal/query"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Predicate type strings used in pipeline configurations.
const (
	TypeExpr  = "expr"
	TypeQuery = "query"
)

// ExprConfig represents the configuration for ExprPredicate.
type ExprConfig struct {
	// Expression is an expr-lang boolean over doc (id, sourceName, tags),
	// roots (root count), nodes (attribute count) and count(query)
	Expression string `json:"expression"`
	// Engine defaults to query.Default()
	Engine query.Engine `json:"-"`
}

// ExprPredicate evaluates an expr-lang expression against the document and forest.
type ExprPredicate struct {
	expression string
	program    *vm.Program
	engine     query.Engine
}

// NewExprFromConfig compiles the expression and creates the predicate.
func NewExprFromConfig(config ExprConfig) (*ExprPredicate, error) {
	engine := config.Engine
	if engine == nil {
		engine = query.Default()
	}
	if config.Expression == "" {
		return nil, errhandling.NewInvalidConfiguration(TypeExpr, "'expression' is required", nil)
	}
	program, err := expr.Compile(config.Expression, expr.Env(predicateEnv(nil, nil, nil)), expr.AsBool())
	if err != nil {
		return nil, errhandling.NewInvalidConfiguration(TypeExpr,
			fmt.Sprintf("invalid expression %q", config.Expression), err)
	}
	return &ExprPredicate{expression: config.Expression, program: program, engine: engine}, nil
}

// Evaluate implements handler.Predicate. A malformed query passed to
// count() is reported as an invalid configuration.
func (p *ExprPredicate) Evaluate(_ context.Context, forest *attribute.Forest, doc *document.Document) (bool, error) {
	var queryErr error
	count := func(q string) int {
		matches, err := p.engine.Query(forest, q)
		if err != nil {
			if queryErr == nil {
				queryErr = err
			}
			return 0
		}
		return len(matches)
	}

	out, err := expr.Run(p.program, predicateEnv(forest, doc, count))
	if queryErr != nil {
		return false, queryErr
	}
	if err != nil {
		return false, fmt.Errorf("evaluating condition %q: %w", p.expression, err)
	}
	result, _ := out.(bool)
	return result, nil
}

func predicateEnv(forest *attribute.Forest, doc *document.Document, count func(string) int) map[string]interface{} {
	if count == nil {
		count = func(string) int { return 0 }
	}
	roots, nodes := 0, 0
	if forest != nil {
		roots, nodes = forest.Len(), forest.Count()
	}
	return map[string]interface{}{
		"doc":   doc.Env(),
		"roots": roots,
		"nodes": nodes,
		"count": count,
	}
}

// QueryConfig represents the configuration for QueryPredicate.
type QueryConfig struct {
	Query string `json:"query"`
	// Operator is one of = != < > <= >= (default >)
	Operator string `json:"operator,omitempty"`
	// Count is compared with the number of matches (default 0)
	Count  int          `json:"count,omitempty"`
	Engine query.Engine `json:"-"`
}

// QueryPredicate compares the number of query matches with a count.
// The default configuration holds when the query matches anything.
type QueryPredicate struct {
	config QueryConfig
}

// NewQueryFromConfig creates the predicate.
func NewQueryFromConfig(config QueryConfig) (*QueryPredicate, error) {
	if config.Engine == nil {
		config.Engine = query.Default()
	}
	if config.Query == "" {
		return nil, errhandling.NewInvalidConfiguration(TypeQuery, "'query' is required", nil)
	}
	if err := config.Engine.Validate(config.Query); err != nil {
		return nil, err
	}
	if config.Operator == "" {
		config.Operator = handler.OpGreater
	}
	switch config.Operator {
	case handler.OpEqual, handler.OpNotEqual, handler.OpLess, handler.OpGreater, handler.OpLessEqual, handler.OpGreaterEqual:
	default:
		return nil, errhandling.NewInvalidConfiguration(TypeQuery, fmt.Sprintf("invalid operator %q", config.Operator), nil)
	}
	if config.Count < 0 {
		return nil, errhandling.NewInvalidConfiguration(TypeQuery, "'count' must not be negative", nil)
	}
	return &QueryPredicate{config: config}, nil
}

// Evaluate implements handler.Predicate.
func (p *QueryPredicate) Evaluate(_ context.Context, forest *attribute.Forest, _ *document.Document) (bool, error) {
	matches, err := p.config.Engine.Query(forest, p.config.Query)
	if err != nil {
		return false, err
	}
	return handler.Compare(len(matches), p.config.Operator, p.config.Count), nil
}

// ParseExprConfig parses a raw configuration map.
func ParseExprConfig(cfg map[string]interface{}) (ExprConfig, error) {
	var config ExprConfig
	e, ok := cfg["expression"].(string)
	if !ok || e == "" {
		return config, errhandling.NewInvalidConfiguration(TypeExpr, "'expression' is required and must be a non-empty string", nil)
	}
	config.Expression = e
	return config, nil
}

// ParseQueryConfig parses a raw configuration map.
func ParseQueryConfig(cfg map[string]interface{}) (QueryConfig, error) {
	var config QueryConfig
	q, ok := cfg["query"].(string)
	if !ok || q == "" {
		return config, errhandling.NewInvalidConfiguration(TypeQuery, "'query' is required and must be a non-empty string", nil)
	}
	config.Query = q
	config.Operator, _ = cfg["operator"].(string)
	switch v := cfg["count"].(type) {
	case int:
		config.Count = v
	case int64:
		config.Count = int(v)
	case float64:
		config.Count = int(v)
	}
	return config, nil
}

var (
	_ handler.Predicate = (*ExprPredicate)(nil)
	_ handler.Predicate = (*QueryPredicate)(nil)
)
