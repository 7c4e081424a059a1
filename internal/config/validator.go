package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "retry.max_attempts")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateRepo()...)
	errors = append(errors, c.validatePublish()...)
	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateNotify()...)

	return errors
}

func (c *Config) validateRepo() []ValidationError {
	var errors []ValidationError

	if c.Repo.Remote == "" {
		errors = append(errors, ValidationError{
			Field:   "repo.remote",
			Value:   c.Repo.Remote,
			Message: "must not be empty",
		})
	}
	if c.Repo.Branch == "" {
		errors = append(errors, ValidationError{
			Field:   "repo.branch",
			Value:   c.Repo.Branch,
			Message: "must not be empty",
		})
	}

	return errors
}

func (c *Config) validatePublish() []ValidationError {
	var errors []ValidationError

	if c.Publish.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "publish.timeout_seconds",
			Value:   c.Publish.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError

	if c.Retry.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_attempts",
			Value:   c.Retry.MaxAttempts,
			Message: "must be at least 1",
		})
	}
	if c.Retry.BackoffMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.backoff_ms",
			Value:   c.Retry.BackoffMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be at least 1",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateNotify() []ValidationError {
	var errors []ValidationError

	if c.Notify.Enabled && len(c.Notify.URLs) == 0 {
		errors = append(errors, ValidationError{
			Field:   "notify.urls",
			Value:   c.Notify.URLs,
			Message: "at least one URL is required when notifications are enabled",
		})
	}
	if c.Notify.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "notify.timeout_seconds",
			Value:   c.Notify.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}
