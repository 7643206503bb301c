// Package errors provides structured error types for the gharvest pipeline.
// All errors carry a category, code, message, and retryable flag so that
// callers can scope recovery to the smallest failing unit of work.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies errors by pipeline stage.
type Category string

const (
	CategoryParse    Category = "PARSE"
	CategoryBronze   Category = "BRONZE"
	CategorySilver   Category = "SILVER"
	CategoryGold     Category = "GOLD"
	CategoryArchive  Category = "ARCHIVE"
	CategoryStorage  Category = "STORAGE"
	CategoryConfig   Category = "CONFIG"
	CategoryInternal Category = "INTERNAL"
)

// Error codes for each category.
const (
	// Parse codes
	CodeMalformedRecord = "MALFORMED_RECORD"

	// Bronze/Silver/Gold codes
	CodeIOFailure             = "IO_FAILURE"
	CodeMissingRequiredColumn = "MISSING_REQUIRED_COLUMN"
	CodeEmptyInput            = "EMPTY_INPUT"

	// Archive codes
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeCorruptArchive = "CORRUPT_ARCHIVE"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PipelineError is the structured error type used throughout the pipeline.
type PipelineError struct {
	Category  Category
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PipelineError.
func New(category Category, code, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Newf creates a new PipelineError with a formatted message.
func Newf(category Category, code, format string, args ...interface{}) *PipelineError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new PipelineError wrapping an existing error.
func Wrap(category Category, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the category from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCategory(err error) Category {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the code from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// isRetryable determines whether an error code describes a transient
// condition worth retrying. Only network-facing failures qualify; data
// errors never do.
func isRetryable(category Category, code string) bool {
	switch {
	case category == CategoryArchive && code == CodeDownloadFailed:
		return true
	case category == CategoryStorage && code == CodeUploadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewParseError(message string, cause error) *PipelineError {
	return Wrap(CategoryParse, CodeMalformedRecord, message, cause)
}

func NewIOError(category Category, message string, cause error) *PipelineError {
	return Wrap(category, CodeIOFailure, message, cause)
}

func NewEmptyInputError(category Category, message string) *PipelineError {
	return New(category, CodeEmptyInput, message)
}

func NewStorageError(code, message string, cause error) *PipelineError {
	return Wrap(CategoryStorage, code, message, cause)
}

func NewConfigError(message string) *PipelineError {
	return New(CategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *PipelineError {
	return Wrap(CategoryInternal, CodeUnexpected, message, cause)
}
