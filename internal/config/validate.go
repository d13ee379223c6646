package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validation errors.
var (
	ErrInvalidLogLevel    = errors.New("log_level must be 'debug', 'info', 'warn', or 'error'")
	ErrEmptySidecar       = errors.New("backend sidecar name cannot be empty")
	ErrInvalidSidecar     = errors.New("backend sidecar name contains a path separator")
	ErrInvalidBackendURL  = errors.New("backend url must be an absolute http(s) URL")
	ErrNegativeDuration   = errors.New("duration cannot be negative")
	ErrInvalidHealthPath  = errors.New("health_path must start with '/'")
	ErrInvalidOutputLines = errors.New("output_lines out of range")
	ErrInvalidEnvVariable = errors.New("backend env key is invalid")
)

// MaxOutputLines bounds the in-memory output buffer.
const MaxOutputLines = 100000

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidationError wraps a validation error with context.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks every setting and returns all problems joined together.
// A nil config is valid (all defaults).
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}

	var errs []error
	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, &ValidationError{
			Field:   "log_level",
			Value:   c.LogLevel,
			Message: "must be one of debug, info, warn, error",
			Err:     ErrInvalidLogLevel,
		})
	}

	if c.Backend.Path == "" {
		if err := ValidateSidecar(c.GetSidecar()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := ValidateBackendURL(c.GetBackendURL()); err != nil {
		errs = append(errs, err)
	}

	for _, d := range []struct {
		field string
		value *Duration
	}{
		{"backend.startup_delay", c.Backend.StartupDelay},
		{"backend.stop_timeout", c.Backend.StopTimeout},
		{"backend.ready_timeout", c.Backend.ReadyTimeout},
	} {
		if err := validateDuration(d.field, d.value); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Backend.HealthPath != "" && !strings.HasPrefix(c.Backend.HealthPath, "/") {
		errs = append(errs, &ValidationError{
			Field:   "backend.health_path",
			Value:   c.Backend.HealthPath,
			Message: "must start with '/'",
			Err:     ErrInvalidHealthPath,
		})
	}

	if c.Backend.OutputLines < 0 || c.Backend.OutputLines > MaxOutputLines {
		errs = append(errs, &ValidationError{
			Field:   "backend.output_lines",
			Value:   fmt.Sprintf("%d", c.Backend.OutputLines),
			Message: fmt.Sprintf("must be between 0 and %d", MaxOutputLines),
			Err:     ErrInvalidOutputLines,
		})
	}

	for key := range c.Backend.Env {
		if key == "" || strings.ContainsAny(key, "= \t\n") {
			errs = append(errs, &ValidationError{
				Field:   "backend.env",
				Value:   key,
				Message: "keys must be non-empty and contain no '=' or whitespace",
				Err:     ErrInvalidEnvVariable,
			})
		}
	}

	return errors.Join(errs...)
}

// ValidateSidecar validates a logical sidecar name.
func ValidateSidecar(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{
			Field:   "backend.sidecar",
			Message: "cannot be empty",
			Err:     ErrEmptySidecar,
		}
	}
	if strings.ContainsAny(name, `/\`) {
		return &ValidationError{
			Field:   "backend.sidecar",
			Value:   name,
			Message: "must be a bare executable name",
			Err:     ErrInvalidSidecar,
		}
	}
	return nil
}

// ValidateBackendURL validates the backend address.
func ValidateBackendURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{
			Field:   "backend.url",
			Value:   raw,
			Message: "must be an absolute http:// or https:// URL",
			Err:     ErrInvalidBackendURL,
		}
	}
	return nil
}

func validateDuration(field string, d *Duration) error {
	if d == nil || d.Duration >= 0 {
		return nil
	}
	return &ValidationError{
		Field:   field,
		Value:   d.Duration.String(),
		Message: "cannot be negative",
		Err:     ErrNegativeDuration,
	}
}
