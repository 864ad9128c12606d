package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError reports one failed field check.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// Validator collects field-level failures so a message is checked in full
// before it is rejected; a bad delivery reports everything wrong with it
// at once.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field runs each rule against the value, recording failures.
func (v *Validator) Field(name string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(name, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

func (v *Validator) HasErrors() bool { return len(v.errors) > 0 }

// ErrorMessage joins every recorded failure into one line.
func (v *Validator) ErrorMessage() string {
	parts := make([]string, len(v.errors))
	for i, e := range v.errors {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// ValidationRule checks one field value.
type ValidationRule func(name string, value any) *ValidationError

// Required rejects missing, non-string, and whitespace-only values.
func Required(name string, value any) *ValidationError {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return &ValidationError{Field: name, Value: value, Message: "is required"}
	}
	return nil
}

// UUID requires a parseable UUID string.
func UUID(name string, value any) *ValidationError {
	s, ok := value.(string)
	if !ok {
		return &ValidationError{Field: name, Value: value, Message: "must be a string"}
	}
	if _, err := uuid.Parse(s); err != nil {
		return &ValidationError{Field: name, Value: value, Message: "must be a valid UUID"}
	}
	return nil
}

// RFC3339Time accepts the empty string; pair with Required when the
// timestamp is mandatory.
func RFC3339Time(name string, value any) *ValidationError {
	s, ok := value.(string)
	if !ok {
		return &ValidationError{Field: name, Value: value, Message: "must be a string"}
	}
	if s == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return &ValidationError{Field: name, Value: value, Message: "must be an RFC 3339 timestamp"}
	}
	return nil
}

// ValidateAndReturnError folds the collected failures into one ErrValidation.
func ValidateAndReturnError(v *Validator) error {
	if v.HasErrors() {
		return ValidationErrorf("%s", v.ErrorMessage())
	}
	return nil
}
