// Package scorer provides the data scorers used by RemoveSubAttributes.
// A score is an integer from 0 to 100.
package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/query"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Scorer type strings used in pipeline configurations.
const (
	TypeExpr       = "expr"
	TypeChildCount = "childCount"
)

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// Clamp bounds score to MinScore..MaxScore.
func Clamp(score int) int {
	return max(MinScore, min(MaxScore, score))
}

// ExprConfig represents the configuration for ExprScorer.
type ExprConfig struct {
	// Expression evaluates to a number over name, type, value, spatial,
	// childCount, children (names) and doc
	Expression string `json:"expression"`
}

// ExprScorer scores attributes with an expr-lang expression.
type ExprScorer struct {
	expression string
	program    *vm.Program
}

// NewExprFromConfig compiles the expression and creates the scorer.
func NewExprFromConfig(config ExprConfig) (*ExprScorer, error) {
	if config.Expression == "" {
		return nil, errhandling.NewInvalidConfiguration(TypeExpr, "'expression' is required", nil)
	}
	program, err := expr.Compile(config.Expression, expr.Env(scoreEnv(nil, nil)))
	if err != nil {
		return nil, errhandling.NewInvalidConfiguration(TypeExpr,
			fmt.Sprintf("invalid expression %q", config.Expression), err)
	}
	return &ExprScorer{expression: config.Expression, program: program}, nil
}

// Score implements handler.DataScorer. Evaluation errors and non-numeric
// results leave the attribute unscored.
func (s *ExprScorer) Score(_ context.Context, attr *attribute.Attribute, doc *document.Document) (int, bool) {
	out, err := expr.Run(s.program, scoreEnv(attr, doc))
	if err != nil {
		logger.Debug("score expression failed",
			slog.String("expression", s.expression),
			slog.String("attribute", attr.Name),
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	switch v := out.(type) {
	case int:
		return Clamp(v), true
	case int64:
		return Clamp(int(v)), true
	case float64:
		if math.IsNaN(v) {
			return 0, false
		}
		return Clamp(int(math.Round(v))), true
	}
	logger.Debug("score expression returned a non-number",
		slog.String("expression", s.expression),
		slog.String("result_type", fmt.Sprintf("%T", out)),
	)
	return 0, false
}

func scoreEnv(a *attribute.Attribute, doc *document.Document) map[string]interface{} {
	env := query.AttributeEnv(a)
	names := []string{}
	if a != nil {
		for _, c := range a.Children {
			names = append(names, c.Name)
		}
	}
	env["children"] = names
	env["doc"] = doc.Env()
	return env
}

// ChildCountConfig represents the configuration for ChildCountScorer.
type ChildCountConfig struct {
	// Names restricts the counted children; empty counts every child
	Names []string `json:"names,omitempty"`
	// Expected is the count scoring 100; defaults to len(Names)
	Expected int `json:"expected,omitempty"`
}

// ChildCountScorer scores the completeness of an attribute: the share of
// expected children present.
type ChildCountScorer struct {
	names    map[string]bool
	expected int
}

// NewChildCountFromConfig creates the scorer.
func NewChildCountFromConfig(config ChildCountConfig) (*ChildCountScorer, error) {
	expected := config.Expected
	if expected == 0 {
		expected = len(config.Names)
	}
	if expected <= 0 {
		return nil, errhandling.NewInvalidConfiguration(TypeChildCount, "'expected' or 'names' is required", nil)
	}
	var names map[string]bool
	if len(config.Names) > 0 {
		names = make(map[string]bool, len(config.Names))
		for _, n := range config.Names {
			names[strings.ToLower(n)] = true
		}
	}
	return &ChildCountScorer{names: names, expected: expected}, nil
}

// Score implements handler.DataScorer. With Names set, each name counts once.
func (s *ChildCountScorer) Score(_ context.Context, attr *attribute.Attribute, _ *document.Document) (int, bool) {
	count := len(attr.Children)
	if s.names != nil {
		seen := make(map[string]bool)
		for _, c := range attr.Children {
			key := strings.ToLower(c.Name)
			if s.names[key] {
				seen[key] = true
			}
		}
		count = len(seen)
	}
	return Clamp(count * MaxScore / s.expected), true
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

// ParseChildCountConfig parses a raw configuration map.
func ParseChildCountConfig(cfg map[string]interface{}) (ChildCountConfig, error) {
	var config ChildCountConfig
	switch v := cfg["names"].(type) {
	case []string:
		config.Names = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				config.Names = append(config.Names, s)
			}
		}
	}
	switch v := cfg["expected"].(type) {
	case int:
		config.Expected = v
	case int64:
		config.Expected = int(v)
	case float64:
		config.Expected = int(v)
	}
	return config, nil
}
