package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors. The pipeline's retry policy keys off these:
// validation failures are never retried (the message dead-letters after the
// receive budget), infrastructure errors are retried by queue redelivery.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrValidation    = errors.New("validation failed")
	ErrDatabase      = errors.New("database error")
	ErrStorage       = errors.New("storage error")
	ErrQueue         = errors.New("queue error")
	ErrInternal      = errors.New("internal error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ValidationErrorf builds an error matched by errors.Is(err, ErrValidation).
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether the error should be surfaced to the queue layer
// for redelivery. Validation failures are terminal for the message.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrValidation)
}
