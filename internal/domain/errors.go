package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeSource              ErrorType = "source"
	ErrorTypeExtraction          ErrorType = "extraction"
	ErrorTypeEnrichmentTransient ErrorType = "enrichment_transient"
	ErrorTypeEnrichmentPermanent ErrorType = "enrichment_permanent"
	ErrorTypeStorage             ErrorType = "storage"
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeConfig              ErrorType = "config"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// FatalSourceError reports a missing or unreadable source document.
func FatalSourceError(message string, err error) *DomainError {
	return NewError(ErrorTypeSource, message, err)
}

func ExtractionError(message string, err error) *DomainError {
	return NewError(ErrorTypeExtraction, message, err)
}

func EnrichmentTransientError(message string, err error) *DomainError {
	return NewError(ErrorTypeEnrichmentTransient, message, err)
}

func EnrichmentPermanentError(message string, err error) *DomainError {
	return NewError(ErrorTypeEnrichmentPermanent, message, err)
}

func StorageError(message string, err error) *DomainError {
	return NewError(ErrorTypeStorage, message, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

// IsType reports whether err wraps a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == errType
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return IsType(err, ErrorTypeEnrichmentTransient)
}
