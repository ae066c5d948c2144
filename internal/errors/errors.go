package errors

import (
	"errors"
	"fmt"
)

// Common error types for the dashboard core
var (
	// Validation errors (resolved at the point of input, never sent upstream)
	ErrInvalidTimeValue  = errors.New("invalid time value")
	ErrInvalidFieldValue = errors.New("invalid field value")
	ErrInvalidConfig     = errors.New("invalid tenant configuration")

	// Auth errors (always escalated to the session manager)
	ErrUnauthorized      = errors.New("credential rejected by remote")
	ErrCredentialExpired = errors.New("credential expired")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrNoCredential      = errors.New("no stored credential")

	// Network errors (logged, last known good state remains displayed)
	ErrNetwork = errors.New("network request failed")

	// Data inconsistency (malformed remote payloads)
	ErrMalformedPayload = errors.New("malformed remote payload")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("closed")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
