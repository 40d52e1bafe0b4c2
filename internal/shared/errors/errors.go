package errors

import (
	"fmt"
)

// ConfigError reports an invalid configuration field. It unwraps to
// DomainErrInvalidConfig so callers can match it by code.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Field != "" {
		return fmt.Sprintf("config error [%s]: %s", e.Field, msg)
	}
	return "config error: " + msg
}

func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{DomainErrInvalidConfig, e.Err}
	}
	return []error{DomainErrInvalidConfig}
}

// NewConfigError creates a new config error
func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
