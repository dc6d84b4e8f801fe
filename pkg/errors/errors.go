package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")

	// ErrExternal indicates an upstream/external API failure
	ErrExternal = errors.New("external service error")

	// ErrNotImplemented indicates the operation is not implemented
	ErrNotImplemented = errors.New("not implemented")
)

// LLM runtime errors

var (
	// ErrLLM indicates a generic LLM provider failure
	ErrLLM = errors.New("llm error")

	// ErrRateLimited indicates the LLM provider rate limit was hit
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrLLMTimeout indicates the LLM request timed out
	ErrLLMTimeout = errors.New("llm request timed out")

	// ErrInvalidResponse indicates a malformed LLM response
	ErrInvalidResponse = errors.New("invalid llm response")

	// ErrToolNotFound indicates a tool outside the whitelist was requested
	ErrToolNotFound = errors.New("tool not found")
)

// Observability errors

var (
	// ErrStorage indicates the log store rejected a write or read
	ErrStorage = errors.New("storage error")

	// ErrInsufficientData indicates too few decisions for an aggregate
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDuplicateName indicates a baseline name is already taken
	ErrDuplicateName = errors.New("duplicate name")

	// ErrInvalidOutcome indicates an outcome category outside the taxonomy
	ErrInvalidOutcome = errors.New("invalid outcome category")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
