package core

import (
	"errors"
	"fmt"
)

// Error codes carried by CounterError.
const (
	// CodeRedisError marks infrastructure failures: pool exhaustion,
	// connection errors, command errors, an open circuit breaker.
	CodeRedisError = "REDIS_ERROR"

	// CodeInvalidArgument marks caller errors rejected before any
	// backing-store command is issued.
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// CodeConfigError marks construction-time failures such as a missing
	// node id or an unsupported consistency level.
	CodeConfigError = "CONFIG_ERROR"
)

// CounterError is the error type reported by all counter operations.
//
// It carries a stable error code for programmatic handling and wraps the
// underlying cause, so errors.Is / errors.As keep working through it.
type CounterError struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *CounterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s [%s]", e.Message, e.Code)
}

// Unwrap returns the underlying cause.
func (e *CounterError) Unwrap() error {
	return e.Cause
}

// NewCounterError creates a CounterError with the given code and cause.
func NewCounterError(message, code string, cause error) *CounterError {
	return &CounterError{Code: code, Message: message, Cause: cause}
}

// RedisError wraps an infrastructure failure with code REDIS_ERROR.
func RedisError(message string, cause error) *CounterError {
	return NewCounterError(message, CodeRedisError, cause)
}

// InvalidArgument reports a caller error with code INVALID_ARGUMENT.
func InvalidArgument(message string) *CounterError {
	return NewCounterError(message, CodeInvalidArgument, nil)
}

// ConfigError reports a construction-time failure with code CONFIG_ERROR.
func ConfigError(message string) *CounterError {
	return NewCounterError(message, CodeConfigError, nil)
}

// IsCode reports whether err is (or wraps) a CounterError with the given code.
func IsCode(err error, code string) bool {
	var ce *CounterError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
