package errors

import (
	"errors"
	"fmt"
	"time"
)

// DomainError is the base interface for all structured errors in the application
type DomainError interface {
	error

	// Domain returns the domain context (e.g., "region", "host", "audit")
	Domain() string

	// Code returns a stable error code for API responses
	Code() string

	// Message returns the human-readable message without the cause
	Message() string

	// Retryable indicates if the operation can be retried by the caller
	Retryable() bool

	// Metadata returns additional error context
	Metadata() map[string]any

	// WithMetadata adds metadata to the error
	WithMetadata(key string, value any) DomainError

	// Timestamp returns when the error occurred
	Timestamp() time.Time
}

// BaseError is the foundational implementation of DomainError
type BaseError struct {
	domain    string
	code      string
	message   string
	cause     error
	retryable bool
	metadata  map[string]any
	timestamp time.Time
}

func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.domain, e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.domain, e.code, e.message)
}

func (e *BaseError) Unwrap() error            { return e.cause }
func (e *BaseError) Domain() string           { return e.domain }
func (e *BaseError) Code() string             { return e.code }
func (e *BaseError) Message() string          { return e.message }
func (e *BaseError) Retryable() bool          { return e.retryable }
func (e *BaseError) Metadata() map[string]any { return e.metadata }
func (e *BaseError) Timestamp() time.Time     { return e.timestamp }

// NewBaseError creates a new BaseError with the specified parameters
func NewBaseError(domain, code, message string, retryable bool, cause error, metadata map[string]any) *BaseError {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &BaseError{
		domain:    domain,
		code:      code,
		message:   message,
		cause:     cause,
		retryable: retryable,
		metadata:  metadata,
		timestamp: time.Now(),
	}
}

// WithMetadata returns a copy of the error with key set in its metadata.
// The receiver is never mutated so shared errors stay safe to reuse.
func (e *BaseError) WithMetadata(key string, value any) DomainError {
	newMeta := make(map[string]any, len(e.metadata)+1)
	for k, v := range e.metadata {
		newMeta[k] = v
	}
	newMeta[key] = value

	return &BaseError{
		domain:    e.domain,
		code:      e.code,
		message:   e.message,
		cause:     e.cause,
		retryable: e.retryable,
		metadata:  newMeta,
		timestamp: e.timestamp,
	}
}

// Standardized Error Codes
const (
	// Allocation errors
	ErrCodeCapacityExhausted   = "capacity_exhausted"
	ErrCodeNotFound            = "not_found"
	ErrCodeInvalidState        = "invalid_state"
	ErrCodeRegionInactive      = "region_inactive"
	ErrCodeInvalidHostname     = "invalid_hostname"
	ErrCodeValidation          = "validation_error"
	ErrCodeConcurrencyConflict = "concurrency_conflict"
	ErrCodePersistence         = "persistence_error"

	// System errors
	ErrCodeConfiguration = "config_error"
	ErrCodeInternal      = "internal_error"
	ErrCodeRateLimit     = "rate_limited"
)

// Domain Constants
const (
	DomainAddressSpace = "address_space"
	DomainRegion       = "region"
	DomainHost         = "host"
	DomainAudit        = "audit"
	DomainUtilization  = "utilization"
	DomainDatabase     = "database"
	DomainSystem       = "system"
	DomainAPI          = "api"
)

// Domain-specific error constructors

// NewAddressSpaceError creates an address space lookup or configuration error
func NewAddressSpaceError(code, message string, cause error) DomainError {
	return NewBaseError(DomainAddressSpace, code, message, false, cause, nil)
}

// NewRegionError creates a standardized region domain error
func NewRegionError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainRegion, code, message, retryable, cause, nil)
}

// NewHostError creates a standardized host domain error
func NewHostError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainHost, code, message, retryable, cause, nil)
}

// NewAuditError creates a standardized audit trail error
func NewAuditError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainAudit, code, message, retryable, cause, nil)
}

// NewUtilizationError creates a standardized utilization error
func NewUtilizationError(code, message string, cause error) DomainError {
	return NewBaseError(DomainUtilization, code, message, false, cause, nil)
}

// NewDatabaseError creates a standardized database error
func NewDatabaseError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainDatabase, code, message, retryable, cause, nil)
}

// NewSystemError creates a standardized system error
func NewSystemError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainSystem, code, message, retryable, cause, nil)
}

// NewDomainAPIError creates a standardized API error
func NewDomainAPIError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainAPI, code, message, retryable, cause, nil)
}

// NewValidationError creates a validation error in the given domain for one field
func NewValidationError(domain, field, message string) DomainError {
	return NewBaseError(domain, ErrCodeValidation, message, false, nil, nil).WithMetadata("field", field)
}

// NewPersistenceError wraps a storage failure. Persistence errors are
// retryable because the store may recover.
func NewPersistenceError(operation string, cause error) DomainError {
	return NewBaseError(DomainDatabase, ErrCodePersistence, operation+" failed", true, cause, nil).
		WithMetadata("db_operation", operation)
}

// Domain Sentinel Errors for fast comparison via IsErrorCode
var (
	DomainErrCountryNotFound = NewAddressSpaceError(ErrCodeNotFound, "country not found", nil)
	DomainErrRegionNotFound  = NewRegionError(ErrCodeNotFound, "region not found", false, nil)
	DomainErrHostNotFound    = NewHostError(ErrCodeNotFound, "host not found", false, nil)
	DomainErrAuditNotFound   = NewAuditError(ErrCodeNotFound, "audit entry not found", false, nil)
	DomainErrInvalidConfig   = NewSystemError(ErrCodeConfiguration, "invalid configuration", false, nil)
)

// Helper functions for error checking

// AsDomainError finds the first DomainError in err's chain
func AsDomainError(err error) (DomainError, bool) {
	var domainErr DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// IsDomainError checks if any error in the chain is a DomainError
func IsDomainError(err error) bool {
	_, ok := AsDomainError(err)
	return ok
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if domainErr, ok := AsDomainError(err); ok {
		return domainErr.Retryable()
	}
	return false
}

// GetErrorCode returns the error code if it's a DomainError, otherwise returns "unknown"
func GetErrorCode(err error) string {
	if domainErr, ok := AsDomainError(err); ok {
		return domainErr.Code()
	}
	return "unknown"
}

// GetErrorDomain returns the error domain if it's a DomainError, otherwise returns "unknown"
func GetErrorDomain(err error) string {
	if domainErr, ok := AsDomainError(err); ok {
		return domainErr.Domain()
	}
	return "unknown"
}

// IsErrorCode checks if any error in the chain has the specified code
func IsErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if domainErr, ok := err.(DomainError); ok && domainErr.Code() == code {
		return true
	}

	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return IsErrorCode(u.Unwrap(), code)
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if IsErrorCode(inner, code) {
				return true
			}
		}
	}
	return false
}

// WrapWithDomain wraps an existing error with domain context
func WrapWithDomain(err error, domain, code, message string, retryable bool) DomainError {
	return NewBaseError(domain, code, message, retryable, err, nil)
}

// UnpackError unpacks a DomainError into its components
func UnpackError(err error) (domain, code, message string, retryable bool, metadata map[string]any, timestamp time.Time, cause error) {
	if domainErr, ok := AsDomainError(err); ok {
		return domainErr.Domain(), domainErr.Code(), domainErr.Error(), domainErr.Retryable(), domainErr.Metadata(), domainErr.Timestamp(), errors.Unwrap(domainErr)
	}
	return "unknown", "unknown", err.Error(), false, nil, time.Time{}, nil
}
