package handler

import (
	"context"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/pkg/attribute"
)

func texts(f *attribute.Forest) []string {
	out := make([]string, 0, f.Len())
	for _, a := range f.Roots() {
		out = append(out, a.Name+"="+a.Text())
	}
	return out
}

type selectorFunc func(*attribute.Forest) []*attribute.Attribute

func (s selectorFunc) Select(_ context.Context, f *attribute.Forest, _ *document.Document) ([]*attribute.Attribute, error) {
	return s(f), nil
}

// scoreByText scores attributes from a fixed table keyed by text.
type scoreByText map[string]int

func (s scoreByText) Score(_ context.Context, a *attribute.Attribute, _ *document.Document) (int, bool) {
	v, ok := s[a.Text()]
	return v, ok
}

type constPredicate struct {
	result bool
	err    error
}

func (p constPredicate) Evaluate(context.Context, *attribute.Forest, *document.Document) (bool, error) {
	return p.result, p.err
}

type upperModifier struct{}

func (upperModifier) Modify(_ context.Context, a *attribute.Attribute, _ *document.Document) error {
	a.SetText(a.Text() + "!")
	return nil
}

type commaSplitter struct{}

func (commaSplitter) Split(_ context.Context, a *attribute.Attribute, _ *document.Document) ([]*attribute.Attribute, error) {
	var out []*attribute.Attribute
	start := 0
	text := a.Text()
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == ',' {
			if i > start {
				out = append(out, attribute.New(a.Name, text[start:i]))
			}
			start = i + 1
		}
	}
	if len(out) < 2 {
		return nil, nil
	}
	return out, nil
}
