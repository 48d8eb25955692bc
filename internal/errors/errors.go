// Package errors provides the structured error type shared by every
// NSDb core component. Every error carries a category, a code, a
// message and a retryable flag so callers can branch on error kind
// without string matching.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies an error by the kind named in §7.
type ErrorCategory string

const (
	ErrCategoryParse    ErrorCategory = "PARSE"
	ErrCategorySchema   ErrorCategory = "SCHEMA"
	ErrCategoryMetadata ErrorCategory = "METADATA"
	ErrCategoryTimeout  ErrorCategory = "TIMEOUT"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes, one per kind named in the error handling design.
const (
	CodeParseError         = "PARSE_ERROR"
	CodeSchemaConflict     = "SCHEMA_CONFLICT"
	CodeMissingSchema      = "MISSING_SCHEMA"
	CodeMissingLocation    = "MISSING_LOCATION"
	CodeDuplicateMetricInfo = "DUPLICATE_METRIC_INFO"
	CodeTimedOut           = "TIMED_OUT"
	CodeStorageError       = "STORAGE_ERROR"
	CodeUnexpected         = "UNEXPECTED"
)

// NSDbError is the structured error type used throughout the core.
type NSDbError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

func (e *NSDbError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *NSDbError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *NSDbError) Is(target error) bool {
	var t *NSDbError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new NSDbError.
func New(category ErrorCategory, code, message string) *NSDbError {
	return &NSDbError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new NSDbError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *NSDbError {
	return &NSDbError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *NSDbError) WithDetails(details map[string]interface{}) *NSDbError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ne *NSDbError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
func GetCategory(err error) ErrorCategory {
	var ne *NSDbError
	if errors.As(err, &ne) {
		return ne.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
func GetCode(err error) string {
	var ne *NSDbError
	if errors.As(err, &ne) {
		return ne.Code
	}
	return ""
}

// isRetryable implements the policy from §7: only timeouts and
// storage errors are retried, and only by the caller.
func isRetryable(category ErrorCategory, code string) bool {
	switch category {
	case ErrCategoryTimeout, ErrCategoryStorage:
		return true
	default:
		return false
	}
}

// Convenience constructors, one per error kind named in §7.

// NewParseError reports a parse failure carrying the offending
// message and the unconsumed input tail.
func NewParseError(message, tail string) *NSDbError {
	return New(ErrCategoryParse, CodeParseError, message).WithDetails(map[string]interface{}{"tail": tail})
}

// NewSchemaConflict reports a type conflict on the named fields.
func NewSchemaConflict(fields []string) *NSDbError {
	return New(ErrCategorySchema, CodeSchemaConflict, fmt.Sprintf("schema conflict on field(s): %s", strings.Join(fields, ", "))).
		WithDetails(map[string]interface{}{"fields": fields})
}

// NewMissingSchema reports that no schema exists for a metric.
func NewMissingSchema(metric string) *NSDbError {
	return New(ErrCategorySchema, CodeMissingSchema, fmt.Sprintf("no schema found for metric %s", metric))
}

// NewMissingLocation reports that no location could be assigned or found.
func NewMissingLocation(metric string) *NSDbError {
	return New(ErrCategoryMetadata, CodeMissingLocation, fmt.Sprintf("no location for metric %s", metric))
}

// NewDuplicateMetricInfo reports that PutMetricInfo was called twice
// for the same metric.
func NewDuplicateMetricInfo(metric string) *NSDbError {
	return New(ErrCategoryMetadata, CodeDuplicateMetricInfo, fmt.Sprintf("metric info already set for %s", metric))
}

// NewTimedOut reports that an ask exceeded its deadline.
func NewTimedOut(operation string) *NSDbError {
	return New(ErrCategoryTimeout, CodeTimedOut, fmt.Sprintf("%s timed out", operation))
}

// NewStorageError wraps an underlying storage failure.
func NewStorageError(message string, cause error) *NSDbError {
	return Wrap(ErrCategoryStorage, CodeStorageError, message, cause)
}

// NewInternalError wraps an unexpected failure with no dedicated kind.
func NewInternalError(message string, cause error) *NSDbError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
