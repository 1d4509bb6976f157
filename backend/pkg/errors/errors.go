package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents missing or malformed required input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents a reference to a non-existent resource
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeUnauthorized represents an identity lacking rights over a resource
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	// ErrorTypeConflict represents a uniqueness constraint violation
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypePartialGraphUpdate represents a half-completed two-sided edge write
	ErrorTypePartialGraphUpdate ErrorType = "partial_graph_update"
	// ErrorTypeTransientStore represents an underlying persistence failure
	ErrorTypeTransientStore ErrorType = "transient_store"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Validation Errors

// ErrValidation is returned when required input is missing or malformed
type ErrValidation struct {
	*BaseError
	Field string
}

func NewValidation(field, reason string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("%s: %s", field, reason), nil),
		Field:     field,
	}
}

// Not Found Errors

// ErrNotFound is returned when a referenced account, post or comment does not exist
type ErrNotFound struct {
	*BaseError
	Resource string
	ID       string
}

func NewNotFound(resource, id string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", resource, id), nil),
		Resource:  resource,
		ID:        id,
	}
}

// Authorization Errors

// ErrUnauthorized is returned when the acting identity lacks rights over the target
type ErrUnauthorized struct {
	*BaseError
	ActorID  string
	Resource string
}

func NewUnauthorized(actorID, resource string) *ErrUnauthorized {
	return &ErrUnauthorized{
		BaseError: NewBaseError(ErrorTypeUnauthorized, fmt.Sprintf("account %s may not modify %s", actorID, resource), nil),
		ActorID:   actorID,
		Resource:  resource,
	}
}

// Conflict Errors

// ErrConflict is returned when a uniqueness constraint (e.g. handle) is violated
type ErrConflict struct {
	*BaseError
	Field string
	Value string
}

func NewConflict(field, value string, err error) *ErrConflict {
	return &ErrConflict{
		BaseError: NewBaseError(ErrorTypeConflict, fmt.Sprintf("%s already taken: %s", field, value), err),
		Field:     field,
		Value:     value,
	}
}

// Graph Errors

// ErrPartialGraphUpdate is returned when a follow/unfollow edge write only partially
// completed. Both operations are idempotent, so the caller retries the whole call.
// The single-edge store cannot produce this from a dual write, but the type stays in
// the wire vocabulary for stores without that property.
type ErrPartialGraphUpdate struct {
	*BaseError
	FollowerID string
	FolloweeID string
}

func NewPartialGraphUpdate(followerID, followeeID string, err error) *ErrPartialGraphUpdate {
	return &ErrPartialGraphUpdate{
		BaseError:  NewBaseError(ErrorTypePartialGraphUpdate, fmt.Sprintf("edge write incomplete: %s -> %s", followerID, followeeID), err),
		FollowerID: followerID,
		FolloweeID: followeeID,
	}
}

// Store Errors

// ErrTransientStore is returned when the underlying store failed; never retried
// internally, propagated as-is
type ErrTransientStore struct {
	*BaseError
	Operation string
}

func NewTransientStore(operation string, err error) *ErrTransientStore {
	return &ErrTransientStore{
		BaseError: NewBaseError(ErrorTypeTransientStore, fmt.Sprintf("store operation failed: %s", operation), err),
		Operation: operation,
	}
}

// Helper functions

// typer is implemented by every error in this package via the embedded *BaseError
type typer interface {
	errorType() ErrorType
}

func (e *BaseError) errorType() ErrorType { return e.Type }

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		if typed, ok := err.(typer); ok {
			return typed.errorType() == errType
		}
		wrapped, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = wrapped.Unwrap()
	}
	return false
}

// IsRetryable checks if the caller may safely retry the failed operation
func IsRetryable(err error) bool {
	// Partial edge writes are repaired by re-running the idempotent call
	if IsType(err, ErrorTypePartialGraphUpdate) {
		return true
	}
	return IsType(err, ErrorTypeTransientStore)
}
