package config

import (
	"fmt"
	"os"
	"strings"

	friendlyerrors "github.com/jxwalker/modshelf/internal/errors"
)

// ValidationError represents a detailed config validation error
type ValidationError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Config validation error in '%s': %s", e.Field, e.Message)
}

// ValidateDetailed reports soft problems that Validate lets through: missing
// library roots, odd preview limits and so on.
func (c *Config) ValidateDetailed() []ValidationError {
	var errs []ValidationError

	if len(c.Library.Roots) == 0 {
		errs = append(errs, ValidationError{
			Field:      "library.roots",
			Message:    "No library roots configured",
			Suggestion: "Point at your model folders:\n  roots:\n    - ~/ComfyUI/models/loras\n    - ~/ComfyUI/models/checkpoints",
		})
	}
	for i, r := range c.Library.Roots {
		fi, err := os.Stat(r)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:      fmt.Sprintf("library.roots[%d]", i),
				Value:      r,
				Message:    "Directory does not exist",
				Suggestion: fmt.Sprintf("Create it or remove it from the list:\n  mkdir -p %s", r),
			})
			continue
		}
		if !fi.IsDir() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("library.roots[%d]", i),
				Value:   r,
				Message: "Not a directory",
			})
		}
	}

	if c.Previews.MaxConcurrency > 16 {
		errs = append(errs, ValidationError{
			Field:      "previews.max_concurrency",
			Value:      c.Previews.MaxConcurrency,
			Message:    "Unusually high (>16 concurrent preview loads)",
			Suggestion: "Recommended: 2-4",
		})
	}
	if c.Previews.DelayMS > 5000 {
		errs = append(errs, ValidationError{
			Field:      "previews.delay_ms",
			Value:      c.Previews.DelayMS,
			Message:    "Very long delay between preview loads (>5s)",
			Suggestion: "Recommended: 100-250 ms",
		})
	}
	if c.Previews.TimeoutSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "previews.timeout_seconds",
			Value:   c.Previews.TimeoutSeconds,
			Message: "Must be >= 0",
		})
	}

	lvl := strings.ToLower(c.Logging.Level)
	switch lvl {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:      "logging.level",
			Value:      c.Logging.Level,
			Message:    "Invalid log level",
			Suggestion: "Use one of: debug, info, warn, error",
		})
	}

	return errs
}

// ValidateWithFriendlyErrors returns a user-friendly validation error
func (c *Config) ValidateWithFriendlyErrors() error {
	if err := c.Validate(); err != nil {
		return err
	}

	errs := c.ValidateDetailed()
	if len(errs) == 0 {
		return nil
	}

	var msg strings.Builder
	msg.WriteString("Configuration validation failed:\n\n")

	for i, err := range errs {
		msg.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
		if err.Value != nil {
			msg.WriteString(fmt.Sprintf("   Current value: %v\n", err.Value))
		}
		if err.Suggestion != "" {
			for _, line := range strings.Split(err.Suggestion, "\n") {
				msg.WriteString(fmt.Sprintf("   → %s\n", line))
			}
		}
		msg.WriteString("\n")
	}

	return friendlyerrors.NewFriendlyError(
		"Config validation failed",
		msg.String(),
	).WithDocs("https://github.com/jxwalker/modshelf#configuration")
}
