package validation

import (
	"testing"

	"github.com/afpipeline/runtime/internal/errhandling"
)

func TestTagValidator(t *testing.T) {
	tests := []struct {
		tag  string
		text string
		want bool
	}{
		{"numeric,len=5", "75001", true},
		{"numeric,len=5", "7500", false},
		{"numeric,len=5", "7500A", false},
		{"email", "jo@example.com", true},
		{"email", "not-an-email", false},
		{"required", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.tag+"/"+tt.text, func(t *testing.T) {
			v, err := NewTagFromConfig(TagConfig{Tag: tt.tag})
			if err != nil {
				t.Fatalf("NewTagFromConfig() error = %v", err)
			}
			if got := v.Accepts(tt.text); got != tt.want {
				t.Errorf("Accepts(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTagValidator_ConfigErrors(t *testing.T) {
	for _, cfg := range []TagConfig{{}, {Tag: "no_such_rule"}} {
		if _, err := NewTagFromConfig(cfg); !errhandling.IsInvalidConfiguration(err) {
			t.Errorf("NewTagFromConfig(%+v) error = %v, want invalid configuration", cfg, err)
		}
	}
}

func TestPatternValidator(t *testing.T) {
	cfg, err := ParsePatternConfig(map[string]interface{}{"pattern": `[A-Z]{2}\d{3}|N/A`})
	if err != nil {
		t.Fatalf("ParsePatternConfig() error = %v", err)
	}
	v, err := NewPatternFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewPatternFromConfig() error = %v", err)
	}

	tests := []struct {
		text string
		want bool
	}{
		{"AB123", true},
		{"N/A", true},
		{"xAB123", false}, // whole text must match
		{"AB1234", false},
	}
	for _, tt := range tests {
		if got := v.Accepts(tt.text); got != tt.want {
			t.Errorf("Accepts(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}

	if _, err = NewPatternFromConfig(PatternConfig{Pattern: "("}); !errhandling.IsInvalidConfiguration(err) {
		t.Errorf("bad pattern: error = %v, want invalid configuration", err)
	}
}
