package config

import "fmt"

// ValidationError represents a single configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msg := "invalid configuration:"
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks a Config for internally-inconsistent values. It assumes
// SetDefaults has already run, so zero values here mean "really zero",
// not "unset".
func Validate(c *Config) error {
	var errs ValidationErrors

	if c.MaxConcurrentTasks < 1 {
		errs = append(errs, ValidationError{"max_concurrent_tasks", "must be >= 1"})
	}
	if c.MaxRetries < 0 {
		errs = append(errs, ValidationError{"max_retries", "must be >= 0"})
	}
	if c.DefaultTimeoutMS < 1 {
		errs = append(errs, ValidationError{"default_timeout_ms", "must be >= 1"})
	}
	if c.HTTPPort == c.WSPort {
		errs = append(errs, ValidationError{"ws_port", "must differ from http_port"})
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		errs = append(errs, ValidationError{"http_port", "must be a valid TCP port"})
	}
	if c.WSPort < 0 || c.WSPort > 65535 {
		errs = append(errs, ValidationError{"ws_port", "must be a valid TCP port"})
	}
	if c.QueueSoftLimit < 1 {
		errs = append(errs, ValidationError{"queue_soft_limit", "must be >= 1"})
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{"log_format", fmt.Sprintf("must be json or text, got %q", c.LogFormat)})
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{"log_level", fmt.Sprintf("must be one of debug, info, warn, error, got %q", c.LogLevel)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
