package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/pkg/attribute"
)

// SelectOnlyUniqueValues keeps, for each root attribute name, a single
// attribute when every attribute of that name has the same text, and drops
// the whole group otherwise.
type SelectOnlyUniqueValues struct{}

// NewSelectOnlyUniqueValues creates the handler.
func NewSelectOnlyUniqueValues() *SelectOnlyUniqueValues {
	return &SelectOnlyUniqueValues{}
}

// Process implements Handler.
func (h *SelectOnlyUniqueValues) Process(_ context.Context, forest *attribute.Forest, _ *document.Document) error {
	drop := make(map[*attribute.Attribute]bool)
	for _, group := range groupByName(forest.Roots()) {
		unique := true
		for _, a := range group[1:] {
			if a.Text() != group[0].Text() {
				unique = false
				break
			}
		}
		start := 1
		if !unique {
			start = 0
		}
		for _, a := range group[start:] {
			drop[a] = true
		}
	}
	removeRoots(forest, drop)
	return nil
}

// SelectUsingMajority keeps, for each root attribute name, the first
// instance of every value that occurs the maximum number of times.
type SelectUsingMajority struct{}

// NewSelectUsingMajority creates the handler.
func NewSelectUsingMajority() *SelectUsingMajority {
	return &SelectUsingMajority{}
}

// Process implements Handler.
func (h *SelectUsingMajority) Process(_ context.Context, forest *attribute.Forest, _ *document.Document) error {
	drop := make(map[*attribute.Attribute]bool)
	for _, group := range groupByName(forest.Roots()) {
		counts := make(map[string]int)
		best := 0
		for _, a := range group {
			counts[a.Text()]++
			best = max(best, counts[a.Text()])
		}
		kept := make(map[string]bool)
		for _, a := range group {
			text := a.Text()
			if counts[text] == best && !kept[text] {
				kept[text] = true
				continue
			}
			drop[a] = true
		}
	}
	removeRoots(forest, drop)
	return nil
}

// groupByName groups attributes by case-insensitive name, in order of first appearance.
func groupByName(attrs []*attribute.Attribute) [][]*attribute.Attribute {
	index := make(map[string]int)
	var groups [][]*attribute.Attribute
	for _, a := range attrs {
		key := strings.ToLower(a.Name)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], a)
	}
	return groups
}

// removeRoots removes the marked root attributes, keeping the order of the rest.
func removeRoots(forest *attribute.Forest, drop map[*attribute.Attribute]bool) {
	if len(drop) == 0 {
		return
	}
	for i := forest.Len() - 1; i >= 0; i-- {
		if drop[forest.At(i)] {
			forest.RemoveAt(i)
		}
	}
	logger.Debug("root attributes removed", slog.Int("removed", len(drop)))
}

var (
	_ Handler = (*SelectOnlyUniqueValues)(nil)
	_ Handler = (*SelectUsingMajority)(nil)
)
