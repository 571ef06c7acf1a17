// Package errors provides a lightweight structured error type for
// category-based classification across the build and archive pipelines.
package errors

import (
	"fmt"
)

// ErrorCategory classifies a BookBuilderError for adapters and callers.
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"

	// External system integration errors
	CategoryNetwork ErrorCategory = "network"
	CategoryForge   ErrorCategory = "forge"
	CategoryArchive ErrorCategory = "archive"

	// Coordination errors
	CategoryLock  ErrorCategory = "lock"
	CategoryBuild ErrorCategory = "build"

	// Runtime and infrastructure errors
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops the current operation
	SeverityError   ErrorSeverity = "error"   // Error, but siblings may continue
	SeverityWarning ErrorSeverity = "warning" // Degraded, operation continues
)

// BookBuilderError is a structured error with category, retryability, and context.
type BookBuilderError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for BookBuilderError.
type ContextFields map[string]any

// Build returns the error itself; kept so construction chains read as
// statements at call sites.
func (e *BookBuilderError) Build() *BookBuilderError {
	return e
}

// Error implements the error interface.
func (e *BookBuilderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping.
func (e *BookBuilderError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *BookBuilderError) WithContext(key string, value any) *BookBuilderError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// WithCause attaches an underlying cause.
func (e *BookBuilderError) WithCause(err error) *BookBuilderError {
	e.Cause = err
	return e
}

// New creates a new BookBuilderError.
func New(category ErrorCategory, severity ErrorSeverity, message string) *BookBuilderError {
	return &BookBuilderError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new BookBuilderError that wraps an existing error.
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *BookBuilderError {
	return &BookBuilderError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// Retryable creates a new retryable BookBuilderError.
func Retryable(category ErrorCategory, severity ErrorSeverity, message string) *BookBuilderError {
	return &BookBuilderError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: true,
	}
}

// IsCategory checks whether an error belongs to a specific category.
func IsCategory(err error, category ErrorCategory) bool {
	if be, ok := err.(*BookBuilderError); ok {
		return be.Category == category
	}
	return false
}

// IsRetryable checks whether an error is retryable.
func IsRetryable(err error) bool {
	if be, ok := err.(*BookBuilderError); ok {
		return be.Retryable
	}
	return false
}

// GetCategory extracts the category, defaulting to CategoryInternal for
// foreign errors.
func GetCategory(err error) ErrorCategory {
	if be, ok := err.(*BookBuilderError); ok {
		return be.Category
	}
	return CategoryInternal
}
