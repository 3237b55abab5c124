package pipeline

import (
	"errors"
	"fmt"
)

// Error represents a fatal pipeline failure. Per-variable conditions are
// never fatal; they surface as ir.Diag entries on the Result instead.
// An Error means the run produced no output at all.
type Error struct {
	// Code identifies the failure category.
	Code ErrorCode

	// Unit names the unit being transformed.
	Unit string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes fatal pipeline failures.
type ErrorCode string

const (
	// ErrCodeCanonical indicates the unit could not be canonically
	// encoded, so no content hash exists for it.
	ErrCodeCanonical ErrorCode = "CANONICAL_ENCODING_FAILED"

	// ErrCodePolicyHash indicates the policy configuration could not
	// be hashed for the run record.
	ErrCodePolicyHash ErrorCode = "POLICY_HASH_FAILED"
)

func (e *Error) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("%s: unit %s: %v", e.Code, e.Unit, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCanonicalError reports whether err is a canonical encoding failure.
// Uses errors.As to handle wrapped errors.
func IsCanonicalError(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeCanonical
	}
	return false
}
