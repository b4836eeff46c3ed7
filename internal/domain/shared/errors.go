// Package shared contains common domain types, errors and events used across
// the catalog, progress and credential domains. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState        = errors.New("invalid state")
	ErrPreconditionMissing = errors.New("precondition required")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Storage errors
	ErrCorrupted = errors.New("stored data is corrupted")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "gating", "credential"
	Op      string // Operation that failed, e.g., "Claim", "MarkLessonComplete"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching. A DomainError matches its Kind, its
// wrapped error, and any other DomainError with the same domain, op and message.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if errors.As(target, &other) && other != e {
		if other.Domain == e.Domain && other.Op == e.Op && other.Message == e.Message {
			return true
		}
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Wrap returns a copy of e carrying err as the underlying cause. The copy
// still matches e with errors.Is.
func (e *DomainError) Wrap(err error) *DomainError {
	return WrapError(e.Domain, e.Op, e.Kind, e.Message, err)
}

// Withf returns a copy of e with formatted detail appended to the message
// in the wrapped cause, keeping errors.Is(copy, e) true.
func (e *DomainError) Withf(format string, args ...any) *DomainError {
	return e.Wrap(fmt.Errorf(format, args...))
}

// Catalog domain errors
var (
	ErrCourseUnknown = NewDomainError("catalog", "Find", ErrNotFound, "course not found in catalog")
	ErrPartUnknown   = NewDomainError("catalog", "Find", ErrNotFound, "part not found in course")
	ErrLessonUnknown = NewDomainError("catalog", "Find", ErrNotFound, "lesson not found in part")
	ErrCatalogSchema = NewDomainError("catalog", "Validate", ErrValidation, "invalid catalog definition")
)

// Progress domain errors
var (
	ErrInvalidScore         = NewDomainError("progress", "UpdatePartScore", ErrValueOutOfRange, "score must be between 0 and 100")
	ErrConfirmationRequired = NewDomainError("progress", "ResetCourse", ErrPreconditionMissing, "reset requires explicit confirmation")
	ErrIdentityMismatch     = NewDomainError("progress", "Import", ErrForbidden, "snapshot belongs to a different identity")
	ErrInvalidSnapshot      = NewDomainError("progress", "Import", ErrInvalidFormat, "invalid progress snapshot")
	ErrCorruptedStore       = NewDomainError("progress", "Load", ErrCorrupted, "stored progress could not be decoded")
	ErrLessonLocked         = NewDomainError("progress", "MarkLessonComplete", ErrForbidden, "lesson is not unlocked yet")
	ErrEmptyIdentity        = NewDomainError("progress", "Validate", ErrInvalidInput, "identity cannot be empty")
)

// Credential domain errors
var (
	ErrCourseNotFound     = NewDomainError("credential", "Claim", ErrNotFound, "course does not exist")
	ErrAlreadyClaimed     = NewDomainError("credential", "Claim", ErrAlreadyExists, "trophy already claimed for this course")
	ErrSoulboundViolation = NewDomainError("credential", "Transfer", ErrForbidden, "transfer not allowed - soulbound tokens")
	ErrApprovalForbidden  = NewDomainError("credential", "Approve", ErrSoulboundViolation, "approval not allowed - soulbound tokens")
	ErrTokenNotFound      = NewDomainError("credential", "Metadata", ErrNotFound, "token does not exist")
	ErrCourseExists       = NewDomainError("credential", "AddCourse", ErrAlreadyExists, "course already exists")
	ErrNotEligible        = NewDomainError("credential", "Claim", ErrForbidden, "course not completed")
	ErrNotRegistryOwner   = NewDomainError("credential", "AddCourse", ErrForbidden, "caller is not the registry owner")
)

// Platform errors
var (
	ErrFeatureDisabled = NewDomainError("platform", "Feature", ErrForbidden, "feature is disabled")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsForbidden checks if the error denies the operation to the caller.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsSoulbound checks if the error is a rejected transfer or approval.
func IsSoulbound(err error) bool {
	return errors.Is(err, ErrSoulboundViolation)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
