// Package modifier provides the value modifiers and splitters that
// RunObjectOnQuery applies to query matches.
package modifier

import (
	"github.com/afpipeline/runtime/pkg/attribute"
)

// Modifier and splitter type strings used in pipeline configurations.
const (
	TypeScript    = "script"
	TypeSet       = "set"
	TypeCase      = "case"
	TypeDelimiter = "delimiter"
)

// attrData is the view of an attribute given to scripts and templates.
func attrData(a *attribute.Attribute) map[string]interface{} {
	children := make([]interface{}, 0, len(a.Children))
	for _, c := range a.Children {
		children = append(children, map[string]interface{}{
			"name":  c.Name,
			"type":  c.Type,
			"value": c.Text(),
		})
	}
	return map[string]interface{}{
		"name":       a.Name,
		"type":       a.Type,
		"value":      a.Text(),
		"validator":  a.Validator,
		"childCount": len(a.Children),
		"children":   children,
	}
}

// childData maps each child name to the text of its first occurrence.
func childData(a *attribute.Attribute) map[string]interface{} {
	out := make(map[string]interface{}, len(a.Children))
	for _, c := range a.Children {
		if _, seen := out[c.Name]; !seen {
			out[c.Name] = c.Text()
		}
	}
	return out
}
