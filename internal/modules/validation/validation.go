// Package validation provides the format validators that documents
// resolve for RemoveInvalidEntries.
package validation

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
)

// Validator type strings used in pipeline configurations.
const (
	TypeTag     = "tag"
	TypePattern = "pattern"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// TagConfig represents the configuration for TagValidator.
type TagConfig struct {
	// Tag is a validator tag such as "numeric,len=5" or "email"
	Tag string `json:"tag"`
}

// TagValidator accepts texts passing a go-playground/validator tag.
type TagValidator struct {
	tag string
}

// NewTagFromConfig checks the tag and creates the validator.
func NewTagFromConfig(config TagConfig) (*TagValidator, error) {
	if config.Tag == "" {
		return nil, errhandling.NewInvalidConfiguration(TypeTag, "'tag' is required", nil)
	}
	if err := checkTag(config.Tag); err != nil {
		return nil, errhandling.NewInvalidConfiguration(TypeTag, fmt.Sprintf("invalid tag %q", config.Tag), err)
	}
	return &TagValidator{tag: config.Tag}, nil
}

// checkTag runs the tag once; the validator panics on unknown tags.
func checkTag(tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	_ = instance().Var("", tag)
	return nil
}

// Accepts implements document.FormatValidator.
func (v *TagValidator) Accepts(text string) bool {
	return instance().Var(text, v.tag) == nil
}

// PatternConfig represents the configuration for PatternValidator.
type PatternConfig struct {
	// Pattern must match the whole text
	Pattern string `json:"pattern"`
}

// PatternValidator accepts texts fully matching a regular expression.
type PatternValidator struct {
	re *regexp.Regexp
}

// NewPatternFromConfig compiles the pattern and creates the validator.
func NewPatternFromConfig(config PatternConfig) (*PatternValidator, error) {
	if config.Pattern == "" {
		return nil, errhandling.NewInvalidConfiguration(TypePattern, "'pattern' is required", nil)
	}
	re, err := regexp.Compile(`^(?:` + config.Pattern + `)$`)
	if err != nil {
		return nil, errhandling.NewInvalidConfiguration(TypePattern, fmt.Sprintf("invalid pattern %q", config.Pattern), err)
	}
	return &PatternValidator{re: re}, nil
}

// Accepts implements document.FormatValidator.
func (v *PatternValidator) Accepts(text string) bool {
	return v.re.MatchString(text)
}

// ParseTagConfig parses a raw configuration map.
func ParseTagConfig(cfg map[string]interface{}) (TagConfig, error) {
	var config TagConfig
	tag, ok := cfg["tag"].(string)
	if !ok || tag == "" {
		return config, errhandling.NewInvalidConfiguration(TypeTag, "'tag' is required and must be a non-empty string", nil)
	}
	config.Tag = tag
	return config, nil
}

// ParsePatternConfig parses a raw configuration map.
func ParsePatternConfig(cfg map[string]interface{}) (PatternConfig, error) {
	var config PatternConfig
	p, ok := cfg["pattern"].(string)
	if !ok || p == "" {
		return config, errhandling.NewInvalidConfiguration(TypePattern, "'pattern' is required and must be a non-empty string", nil)
	}
	config.Pattern = p
	return config, nil
}

var (
	_ document.FormatValidator = (*TagValidator)(nil)
	_ document.FormatValidator = (*PatternValidator)(nil)
)
