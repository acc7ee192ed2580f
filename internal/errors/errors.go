// Package errors provides centralized error handling with category metadata
// used across the event pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryConnection ErrorCategory = "device-connection"
	CategoryAuth       ErrorCategory = "device-authentication"
	CategoryDevice     ErrorCategory = "device-operation"
	CategoryAnalyzer   ErrorCategory = "analyzer-control"
	CategoryDecode     ErrorCategory = "event-decode"
	CategoryOutOfRange ErrorCategory = "buffer-out-of-range"
	CategoryDatabase   ErrorCategory = "database"
	CategoryDispatch   ErrorCategory = "event-dispatch"
	CategoryMQTT       ErrorCategory = "mqtt-publish"
	CategoryValidation ErrorCategory = "validation"
	CategoryConfig     ErrorCategory = "configuration"
	CategoryTimeout    ErrorCategory = "timeout"
	CategoryNotRunning ErrorCategory = "not-running"
	CategoryNotFound   ErrorCategory = "not-found"
	CategoryState      ErrorCategory = "state"
	CategoryGeneric    ErrorCategory = "generic"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with component, category and context metadata.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
	mu        sync.RWMutex
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches two enhanced errors by category, otherwise defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return Is(ee.Err, target)
}

// GetContext returns a copy of the error context.
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	if ee.Context == nil {
		return nil
	}
	out := make(map[string]any, len(ee.Context))
	maps.Copy(out, ee.Context)
	return out
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder wrapping err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new builder around a formatted error.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Timing adds operation timing context.
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	return eb.Context("operation", operation).Context("duration_ms", duration.Milliseconds())
}

// Build creates the EnhancedError.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if ee.Component == "" {
		ee.Component = ComponentUnknown
	}
	if ee.Category == "" {
		ee.Category = CategoryGeneric
	}
	return ee
}

// Convenience constructors for common pipeline error patterns.

// ValidationError creates a validation error from a message.
func ValidationError(message string) *EnhancedError {
	return New(NewStd(message)).Category(CategoryValidation).Build()
}

// TimeoutError creates a timeout error carrying the operation and deadline.
func TimeoutError(operation string, timeout time.Duration) *EnhancedError {
	return Newf("%s: deadline of %s exceeded", operation, timeout).
		Category(CategoryTimeout).
		Context("operation", operation).
		Context("timeout_seconds", timeout.Seconds()).
		Build()
}

// Standard library passthrough functions so this package can replace "errors".

// NewStd creates a new standard error.
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhanced *EnhancedError
	return As(err, &enhanced) && enhanced.Category == category
}

// IsTimeout reports whether err carries CategoryTimeout. Callers use this to
// surface a distinct timeout status instead of a generic failure.
func IsTimeout(err error) bool {
	return IsCategory(err, CategoryTimeout)
}

// IsNotRunning reports whether err carries CategoryNotRunning.
func IsNotRunning(err error) bool {
	return IsCategory(err, CategoryNotRunning)
}

// IsOutOfRange reports whether err carries CategoryOutOfRange. Decoders treat
// this as "skip the field", never as an event-level failure.
func IsOutOfRange(err error) bool {
	return IsCategory(err, CategoryOutOfRange)
}
