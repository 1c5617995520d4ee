package config

import "fmt"

// ConfigError is returned when configuration resolution cannot produce a
// usable ServiceConfig: a required field is missing, a referenced file or
// external remote does not exist, an environment placeholder cannot be
// resolved, a profile name is unknown, or validation rejects the result.
// It is always fatal to the Resolve call that produced it.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Reason, e.Err)
	}
	return "config: " + e.Reason
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

func wrapConfigError(reason string, err error) *ConfigError {
	return &ConfigError{Reason: reason, Err: err}
}
