package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError collects every problem found in a configuration
type ValidationError struct {
	Errors []error
}

// NewValidationError creates an empty ValidationError
func NewValidationError() *ValidationError {
	return &ValidationError{}
}

// Add records err; nil is ignored
func (v *ValidationError) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// HasErrors returns true if there are any validation errors
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	switch len(v.Errors) {
	case 0:
		return ""
	case 1:
		return v.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "found %d validation errors:", len(v.Errors))
	for i, err := range v.Errors {
		fmt.Fprintf(&sb, "\n  %d. %v", i+1, err)
	}
	return sb.String()
}

// Is matches target against any collected error.
func (v *ValidationError) Is(target error) bool {
	for _, err := range v.Errors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (v *ValidationError) Unwrap() []error {
	return v.Errors
}

// ErrorOrNil returns v if it holds errors, otherwise nil
func (v *ValidationError) ErrorOrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}
