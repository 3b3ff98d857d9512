package attribute

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Forest is the ordered, mutable sequence of root attributes.
// A single Forest is shared by pointer through a whole pipeline run; every
// handler observes the mutations made by the previous one. Forest is not
// safe for concurrent use: concurrent runs need independent forests.
type Forest struct {
	roots []*Attribute
}

// NewForest creates a forest over the given roots. The attributes are
// aliased, not copied.
func NewForest(roots ...*Attribute) *Forest {
	f := &Forest{}
	if len(roots) > 0 {
		f.roots = append(make([]*Attribute, 0, len(roots)), roots...)
	}
	return f
}

// Len returns the number of root attributes.
func (f *Forest) Len() int {
	if f == nil {
		return 0
	}
	return len(f.roots)
}

// Roots returns the root attributes. The slice must not be modified.
func (f *Forest) Roots() []*Attribute {
	if f == nil {
		return nil
	}
	return f.roots
}

// At returns the root at position i.
func (f *Forest) At(i int) *Attribute {
	return f.roots[i]
}

// Append adds attributes at the end of the roots.
func (f *Forest) Append(attrs ...*Attribute) {
	f.roots = append(f.roots, attrs...)
}

// Insert inserts attributes at root position i.
func (f *Forest) Insert(i int, attrs ...*Attribute) {
	if i < 0 || i > len(f.roots) {
		i = len(f.roots)
	}
	f.roots = insertAt(f.roots, i, attrs...)
}

// RemoveAt removes the root at position i and returns it.
func (f *Forest) RemoveAt(i int) *Attribute {
	a := f.roots[i]
	f.roots = removeAt(f.roots, i)
	return a
}

// IndexOf returns the root position of attr, or -1 if attr is not a root.
func (f *Forest) IndexOf(attr *Attribute) int {
	if f == nil {
		return -1
	}
	return indexOf(f.roots, attr)
}

// Contains reports whether attr is a node of the forest at any depth.
func (f *Forest) Contains(attr *Attribute) bool {
	_, _, found := f.locate(attr)
	return found
}

// ParentOf returns the parent of attr. The parent is nil for root attributes;
// found is false when attr is not in the forest.
func (f *Forest) ParentOf(attr *Attribute) (parent *Attribute, found bool) {
	parent, _, found = f.locate(attr)
	return parent, found
}

// RootAncestorOf returns the root attribute whose subtree contains attr,
// attr itself when it is a root, or nil when attr is not in the forest.
func (f *Forest) RootAncestorOf(attr *Attribute) *Attribute {
	if f == nil || attr == nil {
		return nil
	}
	for _, root := range f.roots {
		if root == attr || containsNode(root, attr) {
			return root
		}
	}
	return nil
}

// Remove removes attr from wherever it is in the forest.
// Returns false if attr is not in the forest.
func (f *Forest) Remove(attr *Attribute) bool {
	parent, idx, found := f.locate(attr)
	if !found {
		return false
	}
	if parent == nil {
		f.roots = removeAt(f.roots, idx)
	} else {
		parent.Children = removeAt(parent.Children, idx)
	}
	return true
}

// Replace substitutes attr, at its current position, with replacements.
// Returns false if attr is not in the forest.
func (f *Forest) Replace(attr *Attribute, replacements ...*Attribute) bool {
	parent, idx, found := f.locate(attr)
	if !found {
		return false
	}
	if parent == nil {
		f.roots = removeAt(f.roots, idx)
		f.roots = insertAt(f.roots, idx, replacements...)
	} else {
		parent.Children = removeAt(parent.Children, idx)
		parent.Children = insertAt(parent.Children, idx, replacements...)
	}
	return true
}

// RemoveWhere removes, at any depth, every attribute for which pred is true.
// Removed subtrees are not descended into. Returns the number removed.
func (f *Forest) RemoveWhere(pred func(*Attribute) bool) int {
	if f == nil {
		return 0
	}
	var removed int
	f.roots, removed = removeWhere(f.roots, pred)
	return removed
}

// Walk visits every node depth-first in document order. The callback
// receives the node, its parent (nil for roots) and its depth (roots are 1).
// Returning false stops the walk.
func (f *Forest) Walk(fn func(attr, parent *Attribute, depth int) bool) {
	if f == nil {
		return
	}
	for _, root := range f.roots {
		if !walk(root, nil, 1, fn) {
			return
		}
	}
}

// Count returns the total number of nodes at every depth.
func (f *Forest) Count() int {
	n := 0
	f.Walk(func(_, _ *Attribute, _ int) bool {
		n++
		return true
	})
	return n
}

// locate finds attr and returns its parent (nil for roots) and its index
// within the parent's children (or the roots).
func (f *Forest) locate(attr *Attribute) (parent *Attribute, idx int, found bool) {
	if f == nil || attr == nil {
		return nil, -1, false
	}
	if i := indexOf(f.roots, attr); i >= 0 {
		return nil, i, true
	}
	for _, root := range f.roots {
		if p, i, ok := locateIn(root, attr); ok {
			return p, i, true
		}
	}
	return nil, -1, false
}

func locateIn(node, target *Attribute) (*Attribute, int, bool) {
	if i := indexOf(node.Children, target); i >= 0 {
		return node, i, true
	}
	for _, child := range node.Children {
		if p, i, ok := locateIn(child, target); ok {
			return p, i, true
		}
	}
	return nil, -1, false
}

func containsNode(node, target *Attribute) bool {
	for _, child := range node.Children {
		if child == target || containsNode(child, target) {
			return true
		}
	}
	return false
}

func removeWhere(list []*Attribute, pred func(*Attribute) bool) ([]*Attribute, int) {
	removed := 0
	kept := list[:0]
	for _, a := range list {
		if pred(a) {
			removed++
			continue
		}
		var n int
		a.Children, n = removeWhere(a.Children, pred)
		removed += n
		kept = append(kept, a)
	}
	for i := len(kept); i < len(list); i++ {
		list[i] = nil
	}
	return kept, removed
}

func walk(node, parent *Attribute, depth int, fn func(attr, parent *Attribute, depth int) bool) bool {
	if !fn(node, parent, depth) {
		return false
	}
	for _, child := range node.Children {
		if !walk(child, node, depth+1, fn) {
			return false
		}
	}
	return true
}

func insertAt(list []*Attribute, i int, attrs ...*Attribute) []*Attribute {
	if len(attrs) == 0 {
		return list
	}
	out := make([]*Attribute, 0, len(list)+len(attrs))
	out = append(out, list[:i]...)
	out = append(out, attrs...)
	return append(out, list[i:]...)
}

type forestJSON struct {
	Attributes []*Attribute `json:"attributes"`
}

// MarshalJSON encodes the forest as {"attributes": [...]}.
func (f *Forest) MarshalJSON() ([]byte, error) {
	roots := f.Roots()
	if roots == nil {
		roots = []*Attribute{}
	}
	return json.Marshal(forestJSON{Attributes: roots})
}

// UnmarshalJSON decodes {"attributes": [...]} and assigns IDs to nodes
// that were stored without one.
func (f *Forest) UnmarshalJSON(data []byte) error {
	var raw forestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding forest: %w", err)
	}
	f.roots = raw.Attributes
	f.Walk(func(a, _ *Attribute, _ int) bool {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		return true
	})
	return nil
}
