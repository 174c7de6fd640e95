package errors

import (
	"errors"
	"fmt"
)

var (
	// Transaction errors
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrTransactionNotSubmitted = errors.New("transaction is not submitted")
	ErrOwnershipMismatch       = errors.New("customer does not own the transaction")
	ErrOptimisticLockFailed    = errors.New("optimistic lock conflict")

	// Payment errors
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrDuplicatePayment       = errors.New("payment already exists for transaction")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Messaging errors
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownEventKind = errors.New("unknown event kind")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockNotHeld = errors.New("lock not held")

	// ErrInfrastructure marks store, broker and network failures. They are the only retryable class.
	ErrInfrastructure = errors.New("infrastructure unavailable")
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// StateError is raised when an operation is not legal in the entity's current state.
// The entity is left unchanged.
type StateError struct {
	Entity  string
	State   string
	Message string
}

func (e *StateError) Error() string {
	return e.Message
}

func (e *StateError) Unwrap() error {
	return ErrInvalidStateTransition
}

// NewStateError creates a new state error
func NewStateError(entity, state, message string) *StateError {
	return &StateError{
		Entity:  entity,
		State:   state,
		Message: message,
	}
}

// InfrastructureError wraps a failure of the store, the broker or a remote service.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + ErrInfrastructure.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

func (e *InfrastructureError) Is(target error) bool {
	return target == ErrInfrastructure
}

// NewInfrastructureError creates a new infrastructure error
func NewInfrastructureError(op string, err error) *InfrastructureError {
	return &InfrastructureError{Op: op, Err: err}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err refers to a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) || errors.Is(err, ErrPaymentNotFound)
}
