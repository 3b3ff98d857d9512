// Package httpconfig provides the HTTP configuration used to fetch external
// lists: request headers, timeout and retry policy.
package httpconfig

import (
	"fmt"
	"net/http"
	"time"

	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/template"
)

// Default configuration values
const (
	DefaultTimeoutMs = 30000
	DefaultTimeout   = 30 * time.Second
)

// Config contains the HTTP settings of list fetches.
type Config struct {
	// Headers are added to every request.
	// Values support {{doc.id}}, {{doc.sourceName}} and {{doc.tags.<key>}} variables.
	Headers map[string]string `json:"headers,omitempty"`

	// TimeoutMs is the request timeout in milliseconds (default 30000).
	TimeoutMs int `json:"timeoutMs,omitempty"`

	// Retry is the retry policy for transient failures.
	Retry errhandling.RetryConfig `json:"retry"`
}

// Default returns the configuration used when none is given.
func Default() Config {
	return Config{Retry: errhandling.DefaultRetryConfig()}
}

// GetTimeout returns the timeout duration from TimeoutMs, or the default if not set.
func (c *Config) GetTimeout() time.Duration {
	return GetTimeoutDuration(c.TimeoutMs, DefaultTimeout)
}

// Client returns an HTTP client honoring the configured timeout.
func (c *Config) Client() *http.Client {
	return &http.Client{Timeout: c.GetTimeout()}
}

// ExpandHeaders evaluates header templates against a document environment.
func (c *Config) ExpandHeaders(evaluator *template.Evaluator, docEnv map[string]interface{}) map[string]string {
	if len(c.Headers) == 0 {
		return nil
	}
	data := map[string]interface{}{"doc": docEnv}
	out := make(map[string]string, len(c.Headers))
	for name, value := range c.Headers {
		out[name] = evaluator.Evaluate(value, data)
	}
	return out
}

// Extract reads a Config from a config map. Missing values use defaults.
func Extract(config map[string]interface{}) Config {
	cfg := Default()
	if config == nil {
		return cfg
	}
	cfg.Headers = ExtractStringMap(config, "headers")
	cfg.TimeoutMs = extractTimeoutMs(config)
	if retry, ok := config["retry"].(map[string]interface{}); ok {
		cfg.Retry = errhandling.ParseRetryConfig(retry)
	}
	return cfg
}

// Validate checks header templates and the retry policy.
func Validate(config Config) error {
	for name, value := range config.Headers {
		if err := template.ValidateSyntax(value); err != nil {
			return &ValidationError{Field: fmt.Sprintf("headers.%s", name), Message: fmt.Sprintf("invalid template syntax: %v", err)}
		}
	}
	if err := config.Retry.Validate(); err != nil {
		return &ValidationError{Field: "retry", Message: err.Error()}
	}
	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// ExtractStringMap extracts a map[string]string from a config map at the given key.
func ExtractStringMap(config map[string]interface{}, key string) map[string]string {
	result := make(map[string]string)
	if config == nil {
		return result
	}

	mapVal, ok := config[key].(map[string]interface{})
	if !ok {
		return result
	}

	for k, v := range mapVal {
		if strVal, ok := v.(string); ok {
			result[k] = strVal
		}
	}

	return result
}

// extractTimeoutMs extracts timeout in milliseconds from config.
// Supports both "timeoutMs" (preferred) and "timeout" in seconds.
func extractTimeoutMs(config map[string]interface{}) int {
	if ms, ok := config["timeoutMs"]; ok {
		switch v := ms.(type) {
		case float64:
			if v > 0 {
				return int(v)
			}
		case int:
			if v > 0 {
				return v
			}
		}
	}

	if timeoutVal, ok := config["timeout"].(float64); ok && timeoutVal > 0 {
		return int(timeoutVal * 1000)
	}

	return 0
}

// GetTimeoutDuration returns the timeout as a time.Duration.
// If timeoutMs is 0 or negative, returns the provided default.
func GetTimeoutDuration(timeoutMs int, defaultTimeout time.Duration) time.Duration {
	if timeoutMs > 0 {
		return time.Duration(timeoutMs) * time.Millisecond
	}
	return defaultTimeout
}
