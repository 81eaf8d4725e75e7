// Package domain defines the core domain models for dzmesh.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes are DZ-<AREA>-<NNNN>; the last four digits mirror the nearest HTTP status.
//
// @req RQ-0107
// @design DS-0104
type DomainError struct {
	Code    string // Error code (e.g., "DZ-EXP-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
//
// @design DS-0104
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
//
// @design DS-0104
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true // Only check if it's a DomainError
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
//
// @design DS-0104
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Expedition Errors (EXP)
// ============================================================================

var (
	// ErrExpeditionNotFound indicates the expedition is not cached or persisted.
	ErrExpeditionNotFound = NewDomainError("DZ-EXP-4040", "expedition not found")

	// ErrNotMember indicates the character is not a current roster member.
	ErrNotMember = NewDomainError("DZ-EXP-4041", "character is not a member")

	// ErrValidationRejected indicates the request failed business rules.
	ErrValidationRejected = NewDomainError("DZ-EXP-4001", "request rejected")

	// ErrNotLeader indicates a leader-only command from a non-leader.
	ErrNotLeader = NewDomainError("DZ-EXP-4030", "leader permission required")

	// ErrExpeditionLocked indicates invites are disabled.
	ErrExpeditionLocked = NewDomainError("DZ-EXP-4031", "expedition is locked")

	// ErrStaleState indicates accept-time revalidation found changed state.
	ErrStaleState = NewDomainError("DZ-EXP-4090", "state changed since invite")

	// ErrInstanceUnavailable indicates instance allocation failed.
	ErrInstanceUnavailable = NewDomainError("DZ-EXP-5030", "instance unavailable")
)

// ============================================================================
// Protocol Errors (PROTO)
// ============================================================================

var (
	// ErrMalformedMessage indicates a payload or envelope could not be decoded.
	ErrMalformedMessage = NewDomainError("DZ-PROTO-4000", "malformed message")

	// ErrUnknownOpcode indicates the envelope carries an opcode with no variant.
	ErrUnknownOpcode = NewDomainError("DZ-PROTO-4001", "unknown opcode")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternal indicates an internal error.
	ErrInternal = NewDomainError("DZ-SYS-5000", "internal error")

	// ErrPersistence indicates the database collaborator failed.
	ErrPersistence = NewDomainError("DZ-SYS-5001", "persistence failure")

	// ErrLinkDown indicates the world link is not connected.
	ErrLinkDown = NewDomainError("DZ-SYS-5030", "world link unavailable")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("DZ-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("DZ-ARG-1002", "missing required argument")
)
