// Package attribute provides the attribute forest shared by every output handler.
// This package is intended to be importable by external projects that produce
// or consume extracted attribute forests.
//
// An Attribute is a named, typed, valued tree node. Identity is by node (ID and
// pointer), never by value: two attributes with identical name, type and text
// are still distinct nodes.
package attribute

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// TypeSeparator delimits the parts of a composite attribute type.
const TypeSeparator = "+"

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SpatialString is the textual value of an attribute.
// Position metadata is opaque to the pipeline; only the text and whether
// spatial information is present are used.
type SpatialString struct {
	Text       string `json:"text"`
	Spatial    bool   `json:"spatial,omitempty"`
	Page       int    `json:"page,omitempty"`
	Confidence int    `json:"confidence,omitempty"`
}

// Text returns a non-spatial value holding s.
func Text(s string) SpatialString {
	return SpatialString{Text: s}
}

// String returns the text of the value.
func (s SpatialString) String() string {
	return s.Text
}

// HasSpatialInfo reports whether the value carries position information.
func (s SpatialString) HasSpatialInfo() bool {
	return s.Spatial
}

// Attribute is a node of the forest.
type Attribute struct {
	// ID is assigned at creation and survives every handler pass.
	ID uuid.UUID `json:"id"`
	// Name is the logical field name; must satisfy IsValidName.
	Name string `json:"name"`
	// Type is a free-form, "+"-delimited composite tag (may be empty).
	Type string `json:"type,omitempty"`
	// Value is the extracted text.
	Value SpatialString `json:"value"`
	// Children are the sub-attributes, in insertion order.
	Children []*Attribute `json:"children,omitempty"`
	// Validator is the key of the format validator associated with this
	// attribute, resolved through the document. Empty means none.
	Validator string `json:"validator,omitempty"`
}

// New creates an attribute with a fresh ID and a non-spatial value.
func New(name, value string, children ...*Attribute) *Attribute {
	return &Attribute{
		ID:       uuid.New(),
		Name:     name,
		Value:    Text(value),
		Children: children,
	}
}

// NewTyped creates an attribute with a fresh ID and the given type.
func NewTyped(name, typ, value string, children ...*Attribute) *Attribute {
	a := New(name, value, children...)
	a.Type = typ
	return a
}

// IsValidName reports whether name is a valid attribute identifier.
func IsValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Text returns the attribute's value text. Safe on nil.
func (a *Attribute) Text() string {
	if a == nil {
		return ""
	}
	return a.Value.Text
}

// SetText replaces the value with non-spatial text.
func (a *Attribute) SetText(text string) {
	a.Value = Text(text)
}

// TypeParts splits the composite type into its non-empty parts.
func (a *Attribute) TypeParts() []string {
	return SplitType(a.Type)
}

// HasType reports whether part is one of the type parts (case-insensitive).
func (a *Attribute) HasType(part string) bool {
	for _, p := range a.TypeParts() {
		if strings.EqualFold(p, part) {
			return true
		}
	}
	return false
}

// AddType appends part to the composite type unless already present.
func (a *Attribute) AddType(part string) {
	for _, p := range SplitType(part) {
		if !a.HasType(p) {
			a.Type = JoinType(a.Type, p)
		}
	}
}

// AddChild appends children.
func (a *Attribute) AddChild(children ...*Attribute) {
	a.Children = append(a.Children, children...)
}

// ChildIndex returns the position of child among the direct children, or -1.
func (a *Attribute) ChildIndex(child *Attribute) int {
	return indexOf(a.Children, child)
}

// RemoveChild removes child from the direct children.
// Returns false if child is not a direct child.
func (a *Attribute) RemoveChild(child *Attribute) bool {
	i := a.ChildIndex(child)
	if i < 0 {
		return false
	}
	a.Children = removeAt(a.Children, i)
	return true
}

// Clone returns a deep copy with fresh IDs for every node.
func (a *Attribute) Clone() *Attribute {
	if a == nil {
		return nil
	}
	c := &Attribute{
		ID:        uuid.New(),
		Name:      a.Name,
		Type:      a.Type,
		Value:     a.Value,
		Validator: a.Validator,
	}
	if len(a.Children) > 0 {
		c.Children = make([]*Attribute, len(a.Children))
		for i, child := range a.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// SplitType splits a composite type into its non-empty parts.
func SplitType(typ string) []string {
	if typ == "" {
		return nil
	}
	raw := strings.Split(typ, TypeSeparator)
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// JoinType joins the non-empty parts with the type separator.
func JoinType(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, TypeSeparator)
}

// NonSpatialMatch reports whether a and b have the same name, type and text,
// and recursively matching children, ignoring spatial information.
// Names and types compare case-insensitively; text is case-sensitive.
func NonSpatialMatch(a, b *Attribute) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !strings.EqualFold(a.Name, b.Name) ||
		!strings.EqualFold(a.Type, b.Type) ||
		a.Value.Text != b.Value.Text ||
		len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !NonSpatialMatch(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

func indexOf(list []*Attribute, target *Attribute) int {
	for i, a := range list {
		if a == target {
			return i
		}
	}
	return -1
}

func removeAt(list []*Attribute, i int) []*Attribute {
	copy(list[i:], list[i+1:])
	list[len(list)-1] = nil
	return list[:len(list)-1]
}
