// Package util provides logging, shell quoting and common error types shared
// by the sfctest packages.
package util

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors
var (
	ErrUnreachable      = errors.New("target unreachable")
	ErrNotReady         = errors.New("resource not ready")
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrTimeout          = errors.New("timed out")
	ErrValidationFailed = errors.New("validation failed")
)

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// TimeoutError records what was being waited for and for how long.
type TimeoutError struct {
	What    string
	Timeout time.Duration
	Last    string // last observed state, if any
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout after %s waiting for %s", e.Timeout, e.What)
	if e.Last != "" {
		msg += " (last: " + e.Last + ")"
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// UnreachableError reports a target that never answered a bounded probe.
type UnreachableError struct {
	Target   string
	Attempts int
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s unreachable after %d attempts", e.Target, e.Attempts)
}

func (e *UnreachableError) Unwrap() error {
	return ErrUnreachable
}
