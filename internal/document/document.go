// Package document provides the per-run document context handed to every
// output handler: identity, source name, tag values and format validators.
package document

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Built-in tag names always resolvable through ExpandTags.
const (
	TagSourceDocName = "SourceDocName"
	TagDocumentID    = "DocumentID"
)

var tagPattern = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_]*)>`)

// FormatValidator decides whether a text value is acceptable.
type FormatValidator interface {
	Accepts(text string) bool
}

// FormatValidatorFunc adapts a function to FormatValidator.
type FormatValidatorFunc func(text string) bool

// Accepts implements FormatValidator.
func (f FormatValidatorFunc) Accepts(text string) bool { return f(text) }

// Document is the context of one pipeline run.
type Document struct {
	ID         string
	SourceName string

	mu         sync.RWMutex
	tags       map[string]string
	validators map[string]FormatValidator
}

// New creates a document context.
func New(id, sourceName string) *Document {
	return &Document{
		ID:         id,
		SourceName: sourceName,
		tags:       make(map[string]string),
		validators: make(map[string]FormatValidator),
	}
}

// SetTag sets a tag value. Tag names are case-insensitive.
func (d *Document) SetTag(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tags == nil {
		d.tags = make(map[string]string)
	}
	d.tags[strings.ToLower(name)] = value
}

// Tag returns a tag value, including the built-in tags.
func (d *Document) Tag(name string) (string, bool) {
	if d == nil {
		return "", false
	}
	switch {
	case strings.EqualFold(name, TagSourceDocName):
		return d.SourceName, true
	case strings.EqualFold(name, TagDocumentID):
		return d.ID, true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.tags[strings.ToLower(name)]
	return v, ok
}

// Tags returns a copy of the user tags (lower-cased names).
func (d *Document) Tags() map[string]string {
	out := make(map[string]string)
	if d == nil {
		return out
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for k, v := range d.tags {
		out[k] = v
	}
	return out
}

// ExpandTags replaces every <Name> with the value of tag Name.
// Unknown tags are left untouched.
func (d *Document) ExpandTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return tagPattern.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := d.Tag(m[1 : len(m)-1]); ok {
			return v
		}
		return m
	})
}

// RegisterValidator associates a validator with key.
func (d *Document) RegisterValidator(key string, v FormatValidator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.validators == nil {
		d.validators = make(map[string]FormatValidator)
	}
	d.validators[key] = v
}

// Validator resolves a validator by key.
func (d *Document) Validator(key string) (FormatValidator, bool) {
	if d == nil || key == "" {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.validators[key]
	return v, ok
}

// ValidatorKeys returns the registered validator keys, sorted.
func (d *Document) ValidatorKeys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, 0, len(d.validators))
	for k := range d.validators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Env is the view of the document given to expressions, scripts and
// templates: id, sourceName and tags. A nil document yields empty values.
func (d *Document) Env() map[string]interface{} {
	tags := make(map[string]interface{})
	if d == nil {
		return map[string]interface{}{"id": "", "sourceName": "", "tags": tags}
	}
	for k, v := range d.Tags() {
		tags[k] = v
	}
	return map[string]interface{}{
		"id":         d.ID,
		"sourceName": d.SourceName,
		"tags":       tags,
	}
}
