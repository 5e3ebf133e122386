// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors
var (
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidAlert      = errors.New("invalid alert")
	ErrSourceUnavailable = errors.New("market data source unavailable")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrNotLoaded         = errors.New("data not loaded")
)

// APIError represents a non-2xx response from the dashboard backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("api error [%d] %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
	}
	return fmt.Sprintf("api error [%d] %s %s", e.StatusCode, e.Method, e.Path)
}

// Is lets a 404 match ErrAlertNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrAlertNotFound && e.StatusCode == http.StatusNotFound
}

// NewAPIError creates a new APIError.
func NewAPIError(method, path string, statusCode int, body string) *APIError {
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Body:       body,
	}
}

// MutationError reports a failed alert mutation and whether the local list
// was restored to its pre-mutation state.
type MutationError struct {
	Op         string
	AlertID    string
	RolledBack bool
	Err        error
}

func (e *MutationError) Error() string {
	state := "local change kept"
	if e.RolledBack {
		state = "local change rolled back"
	}
	if e.AlertID == "" {
		return fmt.Sprintf("%s failed (%s): %v", e.Op, state, e.Err)
	}
	return fmt.Sprintf("%s %s failed (%s): %v", e.Op, e.AlertID, state, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError creates a new MutationError.
func NewMutationError(op, alertID string, rolledBack bool, err error) *MutationError {
	return &MutationError{
		Op:         op,
		AlertID:    alertID,
		RolledBack: rolledBack,
		Err:        err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap makes every validation failure match ErrInvalidAlert.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidAlert
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// SourceError reports a failed market data source fetch.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

// NewSourceError creates a new SourceError.
func NewSourceError(source string, err error) *SourceError {
	return &SourceError{Source: source, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, nil if all are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
