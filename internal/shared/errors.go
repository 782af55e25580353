package shared

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrValidation indicates malformed or inconsistent input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a stock record cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicateSubmission marks a replayed idempotency key. Callers treat it as success.
	ErrDuplicateSubmission = errors.New("duplicate submission")
	// ErrInvalidState indicates an action attempted on a record in the wrong status.
	ErrInvalidState = errors.New("invalid state")
	// ErrInfrastructure wraps database and other backing store failures.
	ErrInfrastructure = errors.New("infrastructure failure")
	// ErrTimeout indicates the operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrConnectivity indicates the backing store could not be reached.
	ErrConnectivity = errors.New("store unreachable")
	// ErrAuthorization indicates the actor is unknown or not allowed.
	ErrAuthorization = errors.New("not authorized")
)

// ValidationError carries per-field messages and unwraps to ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Add records a field message, creating the map on first use.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// OrNil returns nil when no field message was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
