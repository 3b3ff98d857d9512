// Package query resolves attribute queries against a forest.
//
// Handlers depend on the Engine interface only. PathEngine is the reference
// engine: a query is one or more alternatives separated by "|", each a
// "/"-separated path of segments starting at the roots. A segment is a name
// or "*", optionally followed by "@Type" and a bracketed expr predicate:
//
//	Person/First
//	Invoice/*@Date
//	Person[childCount > 0]|Company/Contact
//
// Predicates see name, type, value, spatial and childCount.
package query

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Engine evaluates queries against a forest.
type Engine interface {
	// Query returns the matching attributes at any depth in document order
	// (depth-first, parents before children), without duplicates.
	Query(forest *attribute.Forest, text string) ([]*attribute.Attribute, error)
	// ParentOf returns the parent of attr, or nil for roots and unknown nodes.
	ParentOf(forest *attribute.Forest, attr *attribute.Attribute) *attribute.Attribute
	// RootAncestorOf returns the root whose subtree contains attr.
	RootAncestorOf(forest *attribute.Forest, attr *attribute.Attribute) *attribute.Attribute
	// MinQueryDepth returns the smallest depth any match of text can have (roots are 1).
	MinQueryDepth(text string) (int, error)
	// Validate reports malformed query text.
	Validate(text string) error
}

var defaultEngine = NewPathEngine()

// Default returns the shared reference engine.
func Default() Engine {
	return defaultEngine
}

type segment struct {
	name     string // "" matches any name
	typ      string
	predText string
	pred     *vm.Program
}

type compiled struct {
	alternatives [][]segment
	minDepth     int
	maxDepth     int
}

// PathEngine is the reference Engine. It is safe for concurrent use;
// compiled queries are cached.
type PathEngine struct {
	mu    sync.RWMutex
	cache map[string]*compiled
}

// NewPathEngine creates an engine with an empty cache.
func NewPathEngine() *PathEngine {
	return &PathEngine{cache: make(map[string]*compiled)}
}

var _ Engine = (*PathEngine)(nil)

// Validate implements Engine.
func (e *PathEngine) Validate(text string) error {
	_, err := e.compile(text)
	return err
}

// MinQueryDepth implements Engine.
func (e *PathEngine) MinQueryDepth(text string) (int, error) {
	c, err := e.compile(text)
	if err != nil {
		return 0, err
	}
	return c.minDepth, nil
}

// ParentOf implements Engine.
func (e *PathEngine) ParentOf(forest *attribute.Forest, attr *attribute.Attribute) *attribute.Attribute {
	parent, _ := forest.ParentOf(attr)
	return parent
}

// RootAncestorOf implements Engine.
func (e *PathEngine) RootAncestorOf(forest *attribute.Forest, attr *attribute.Attribute) *attribute.Attribute {
	return forest.RootAncestorOf(attr)
}

// Query implements Engine. Matches of every alternative are merged in
// document order (depth-first, parents before children), each node once.
// A predicate that fails to evaluate on a node does not match it.
func (e *PathEngine) Query(forest *attribute.Forest, text string) ([]*attribute.Attribute, error) {
	c, err := e.compile(text)
	if err != nil {
		return nil, err
	}

	var results []*attribute.Attribute
	path := make([]*attribute.Attribute, 0, 8)
	var visit func(nodes []*attribute.Attribute)
	visit = func(nodes []*attribute.Attribute) {
		for _, n := range nodes {
			path = append(path, n)
			if c.matchesAny(path) {
				results = append(results, n)
			}
			if len(path) < c.maxDepth {
				visit(n.Children)
			}
			path = path[:len(path)-1]
		}
	}
	visit(forest.Roots())
	return results, nil
}

// matchesAny reports whether the node at the end of path is reached by an alternative.
func (c *compiled) matchesAny(path []*attribute.Attribute) bool {
	for _, alt := range c.alternatives {
		if len(alt) != len(path) {
			continue
		}
		matched := true
		for i, seg := range alt {
			if !seg.matches(path[i]) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func (s segment) matches(a *attribute.Attribute) bool {
	if s.name != "" && !strings.EqualFold(s.name, a.Name) {
		return false
	}
	if s.typ != "" && !a.HasType(s.typ) {
		return false
	}
	if s.pred == nil {
		return true
	}
	out, err := expr.Run(s.pred, AttributeEnv(a))
	if err != nil {
		logger.Debug("query predicate failed, node not matched",
			slog.String("predicate", s.predText),
			slog.String("attribute", a.Name),
			slog.String("error", err.Error()),
		)
		return false
	}
	b, _ := out.(bool)
	return b
}

// AttributeEnv is the expr environment describing a: name, type, value,
// spatial and childCount. A nil attribute yields zero values, suitable for
// compiling.
func AttributeEnv(a *attribute.Attribute) map[string]interface{} {
	if a == nil {
		return map[string]interface{}{
			"name": "", "type": "", "value": "", "spatial": false, "childCount": 0,
		}
	}
	return map[string]interface{}{
		"name":       a.Name,
		"type":       a.Type,
		"value":      a.Value.Text,
		"spatial":    a.Value.HasSpatialInfo(),
		"childCount": len(a.Children),
	}
}

func (e *PathEngine) compile(text string) (*compiled, error) {
	e.mu.RLock()
	c, ok := e.cache[text]
	e.mu.RUnlock()
	if ok {
		return c, nil
	}

	c, err := parse(text)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[text] = c
	e.mu.Unlock()
	return c, nil
}

func parse(text string) (*compiled, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errhandling.NewInvalidQuery(text, "query is empty")
	}
	alts, err := splitTopLevel(text, '|')
	if err != nil {
		return nil, errhandling.NewInvalidQuery(text, err.Error())
	}

	c := &compiled{}
	for _, altText := range alts {
		parts, err := splitTopLevel(altText, '/')
		if err != nil {
			return nil, errhandling.NewInvalidQuery(text, err.Error())
		}
		segs := make([]segment, 0, len(parts))
		for _, p := range parts {
			seg, err := parseSegment(strings.TrimSpace(p))
			if err != nil {
				return nil, errhandling.NewInvalidQuery(text, err.Error())
			}
			segs = append(segs, seg)
		}
		c.alternatives = append(c.alternatives, segs)
		if c.minDepth == 0 || len(segs) < c.minDepth {
			c.minDepth = len(segs)
		}
		if len(segs) > c.maxDepth {
			c.maxDepth = len(segs)
		}
	}
	return c, nil
}

func parseSegment(s string) (segment, error) {
	if s == "" {
		return segment{}, fmt.Errorf("empty path segment")
	}

	var seg segment
	if i := strings.IndexByte(s, '['); i >= 0 {
		if !strings.HasSuffix(s, "]") {
			return segment{}, fmt.Errorf("unterminated predicate in %q", s)
		}
		seg.predText = strings.TrimSpace(s[i+1 : len(s)-1])
		if seg.predText == "" {
			return segment{}, fmt.Errorf("empty predicate in %q", s)
		}
		program, err := expr.Compile(seg.predText, expr.Env(AttributeEnv(nil)), expr.AsBool())
		if err != nil {
			return segment{}, fmt.Errorf("predicate [%s]: %v", seg.predText, err)
		}
		seg.pred = program
		s = strings.TrimSpace(s[:i])
	}

	if i := strings.IndexByte(s, '@'); i >= 0 {
		seg.typ = strings.TrimSpace(s[i+1:])
		if seg.typ == "" {
			return segment{}, fmt.Errorf("empty type filter in %q", s)
		}
		s = strings.TrimSpace(s[:i])
	}

	switch {
	case s == "*":
	case attribute.IsValidName(s):
		seg.name = s
	default:
		return segment{}, fmt.Errorf("invalid attribute name %q", s)
	}
	return seg, nil
}

// splitTopLevel splits s on sep outside brackets and quoted strings.
func splitTopLevel(s string, sep byte) ([]string, error) {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'' || ch == '`':
			quote = ch
		case ch == '[':
			depth++
		case ch == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced ']'")
			}
		case ch == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced '['")
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string")
	}
	return append(parts, s[start:]), nil
}
