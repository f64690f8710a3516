package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field failed validation.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// ValidateConfig checks every section and returns ValidationErrors.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors
	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := ParseTriggerKey(e.TriggerKey); err != nil {
		errs = append(errs, ValidationError{
			Field:   "engine.trigger_key",
			Message: err.Error(),
		})
	}

	if e.EngineName == "" {
		errs = append(errs, ValidationError{
			Field:   "engine.engine_name",
			Message: "engine name is required",
		})
	}

	// Bus names are dot-separated elements; at least two are required.
	if e.ComponentName == "" || !strings.Contains(e.ComponentName, ".") ||
		strings.HasPrefix(e.ComponentName, ".") || strings.HasSuffix(e.ComponentName, ".") {
		errs = append(errs, ValidationError{
			Field:   "engine.component_name",
			Message: fmt.Sprintf("invalid bus name: %q", e.ComponentName),
		})
	}

	if e.BusAddress != "" && !strings.Contains(e.BusAddress, ":") {
		errs = append(errs, ValidationError{
			Field:   "engine.bus_address",
			Message: fmt.Sprintf("not a D-Bus address: %q", e.BusAddress),
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %q (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}
