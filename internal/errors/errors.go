// Package errors provides structured error types for the Tessera system.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryCatalog  ErrorCategory = "CATALOG"
	ErrCategoryPruning  ErrorCategory = "PRUNING"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategorySnapshot ErrorCategory = "SNAPSHOT"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Catalog codes
	CodeTableNotFound    = "TABLE_NOT_FOUND"
	CodeTableExists      = "TABLE_EXISTS"
	CodeShardExists      = "SHARD_EXISTS"
	CodeMalformedCatalog = "MALFORMED_CATALOG"
	CodeCatalogIO        = "CATALOG_IO"

	// Pruning codes
	CodeTypeMismatch    = "TYPE_MISMATCH"
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Snapshot codes
	CodeCorruptSnapshot = "CORRUPT_SNAPSHOT"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// TesseraError is the structured error type used throughout the system.
type TesseraError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *TesseraError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *TesseraError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *TesseraError) Is(target error) bool {
	var t *TesseraError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new TesseraError.
func New(category ErrorCategory, code, message string) *TesseraError {
	return &TesseraError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new TesseraError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *TesseraError {
	return &TesseraError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *TesseraError) WithDetails(details map[string]interface{}) *TesseraError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var te *TesseraError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a TesseraError.
func GetCategory(err error) ErrorCategory {
	var te *TesseraError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a TesseraError.
func GetCode(err error) string {
	var te *TesseraError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. Pruning is
// deterministic and side-effect free, so only storage transfer failures
// qualify.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

// NewNotFound reports a table identifier that does not resolve to a
// distributed table.
func NewNotFound(message string) *TesseraError {
	return New(ErrCategoryCatalog, CodeTableNotFound, message)
}

// NewTypeMismatch reports a literal whose type is incompatible with the
// partition column's declared type. Never coerced, never retried.
func NewTypeMismatch(message string, cause error) *TesseraError {
	return Wrap(ErrCategoryPruning, CodeTypeMismatch, message, cause)
}

// NewMalformedCatalog reports shard intervals that violate the
// sort/non-overlap invariant. Fatal for the call: guessing an ordering
// could silently corrupt results.
func NewMalformedCatalog(message string, cause error) *TesseraError {
	return Wrap(ErrCategoryCatalog, CodeMalformedCatalog, message, cause)
}

// NewInvalidArgument reports a malformed caller request.
func NewInvalidArgument(message string) *TesseraError {
	return New(ErrCategoryPruning, CodeInvalidArgument, message)
}

func NewCatalogError(code, message string, cause error) *TesseraError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewStorageError(code, message string, cause error) *TesseraError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewSnapshotError(message string, cause error) *TesseraError {
	return Wrap(ErrCategorySnapshot, CodeCorruptSnapshot, message, cause)
}

func NewConfigError(message string) *TesseraError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *TesseraError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// Error chain predicates used at API boundaries.

// IsNotFound reports whether the chain contains a TABLE_NOT_FOUND error.
func IsNotFound(err error) bool {
	return GetCode(err) == CodeTableNotFound
}

// IsTypeMismatch reports whether the chain contains a TYPE_MISMATCH error.
func IsTypeMismatch(err error) bool {
	return GetCode(err) == CodeTypeMismatch
}

// IsMalformedCatalog reports whether the chain contains a
// MALFORMED_CATALOG error.
func IsMalformedCatalog(err error) bool {
	return GetCode(err) == CodeMalformedCatalog
}
