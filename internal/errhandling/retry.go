// Package errhandling provides error types, classification, and retry utilities.
// This file defines the retry configuration used when fetching external list
// sources over HTTP, and the executor applying it.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Default retry configuration values
const (
	DefaultMaxAttempts       = 3
	DefaultDelayMs           = 500
	DefaultBackoffMultiplier = 2.0
	DefaultMaxDelayMs        = 10000
	MaxRetryAttempts         = 10
	MinBackoffMultiplier     = 1.0
)

// RetryConfig holds retry configuration for list source fetches.
type RetryConfig struct {
	// MaxAttempts is the maximum number of retry attempts (0 = no retry).
	// Default: 3, Max: 10
	MaxAttempts int `json:"maxAttempts" yaml:"maxAttempts" toml:"maxAttempts"`

	// DelayMs is the initial delay between retries in milliseconds.
	DelayMs int `json:"delayMs" yaml:"delayMs" toml:"delayMs"`

	// BackoffMultiplier is the multiplier for exponential backoff (>= 1.0).
	BackoffMultiplier float64 `json:"backoffMultiplier" yaml:"backoffMultiplier" toml:"backoffMultiplier"`

	// MaxDelayMs is the maximum delay between retries in milliseconds.
	MaxDelayMs int `json:"maxDelayMs" yaml:"maxDelayMs" toml:"maxDelayMs"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       DefaultMaxAttempts,
		DelayMs:           DefaultDelayMs,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxDelayMs:        DefaultMaxDelayMs,
	}
}

// Validate validates the retry configuration.
// Returns an error if any value is out of valid range.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return errors.New("maxAttempts must be >= 0")
	}
	if c.MaxAttempts > MaxRetryAttempts {
		return fmt.Errorf("maxAttempts must be <= %d", MaxRetryAttempts)
	}
	if c.DelayMs < 0 {
		return errors.New("delayMs must be >= 0")
	}
	if c.BackoffMultiplier < MinBackoffMultiplier {
		return fmt.Errorf("backoffMultiplier must be >= %v", MinBackoffMultiplier)
	}
	if c.MaxDelayMs < 0 {
		return errors.New("maxDelayMs must be >= 0")
	}
	return nil
}

// CalculateDelay calculates the retry delay for a given attempt using exponential backoff.
// The formula is: min(delayMs * (backoffMultiplier ^ attempt), maxDelayMs)
func (c RetryConfig) CalculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delayMs := float64(c.DelayMs) * math.Pow(c.BackoffMultiplier, float64(attempt))
	if delayMs > float64(c.MaxDelayMs) {
		delayMs = float64(c.MaxDelayMs)
	}
	return time.Duration(delayMs) * time.Millisecond
}

// ShouldRetry determines if a retry should be attempted based on the attempt number and error.
// Returns false if:
//   - Error is nil
//   - MaxAttempts is 0 (retries disabled)
//   - Current attempt >= MaxAttempts
//   - Error is not retryable
func (c RetryConfig) ShouldRetry(attempt int, err error) bool {
	if err == nil || c.MaxAttempts == 0 || attempt >= c.MaxAttempts {
		return false
	}
	return IsRetryable(err)
}

// ParseRetryConfig parses retry configuration from a map.
// Missing values are filled with defaults.
func ParseRetryConfig(m map[string]interface{}) RetryConfig {
	config := DefaultRetryConfig()
	if m == nil {
		return config
	}
	if v, ok := getInt(m, "maxAttempts"); ok {
		config.MaxAttempts = v
	}
	if v, ok := getInt(m, "delayMs"); ok {
		config.DelayMs = v
	}
	if v, ok := getFloat(m, "backoffMultiplier"); ok {
		config.BackoffMultiplier = v
	}
	if v, ok := getInt(m, "maxDelayMs"); ok {
		config.MaxDelayMs = v
	}
	return config
}

// getInt extracts an int value from a map, handling float64 (JSON) and int types.
func getInt(m map[string]interface{}, key string) (int, bool) {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case float64:
			return int(val), true
		case int:
			return val, true
		case int64:
			return int(val), true
		}
	}
	return 0, false
}

// getFloat extracts a float64 value from a map.
func getFloat(m map[string]interface{}, key string) (float64, bool) {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case float64:
			return val, true
		case int:
			return float64(val), true
		case int64:
			return float64(val), true
		}
	}
	return 0, false
}

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) error

// RetryInfo contains information about retry attempts.
type RetryInfo struct {
	// TotalAttempts is the total number of attempts made.
	TotalAttempts int

	// SuccessfulAttempt is the attempt number that succeeded (0 if failed).
	SuccessfulAttempt int

	// Delays is the list of delays between retries.
	Delays []time.Duration

	// Errors is the list of errors encountered during retries.
	Errors []error
}

// RetryExecutor executes functions with retry logic.
type RetryExecutor struct {
	config    RetryConfig
	retryInfo RetryInfo
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRetryExecutor creates a new retry executor with the given configuration.
func NewRetryExecutor(config RetryConfig) *RetryExecutor {
	return &RetryExecutor{config: config, sleep: sleepContext}
}

// Execute runs fn, retrying transient errors up to MaxAttempts times.
// Fatal errors are returned immediately.
func (e *RetryExecutor) Execute(ctx context.Context, fn RetryFunc) error {
	e.retryInfo = RetryInfo{}

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxAttempts; attempt++ {
		e.retryInfo.TotalAttempts = attempt + 1

		if err := ctx.Err(); err != nil {
			return ClassifyError(err)
		}

		err := fn(ctx)
		if err == nil {
			e.retryInfo.SuccessfulAttempt = attempt + 1
			return nil
		}
		lastErr = err
		e.retryInfo.Errors = append(e.retryInfo.Errors, err)

		if !e.config.ShouldRetry(attempt, err) {
			return err
		}

		delay := e.config.CalculateDelay(attempt)
		e.retryInfo.Delays = append(e.retryInfo.Delays, delay)
		if err := e.sleep(ctx, delay); err != nil {
			return ClassifyError(err)
		}
	}
	return lastErr
}

// GetRetryInfo returns information about the last Execute call.
func (e *RetryExecutor) GetRetryInfo() RetryInfo {
	return e.retryInfo
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
