package messaging

import (
	"errors"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
)

// RetryClassifier determines whether an error should not be retried.
type RetryClassifier interface {
	IsNonRetryable(err error) bool
}

type RetryClassifierFunc func(err error) bool

func (fn RetryClassifierFunc) IsNonRetryable(err error) bool {
	if fn == nil {
		return false
	}
	return fn(err)
}

// DefaultClassifier treats validation, state and lookup failures as terminal:
// redelivering the same message cannot change their outcome. Everything else is
// assumed to be infrastructure trouble and retried.
var DefaultClassifier RetryClassifier = RetryClassifierFunc(IsTerminal)

func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	if domainErrors.IsValidation(err) || domainErrors.IsNotFound(err) {
		return true
	}
	return errors.Is(err, domainErrors.ErrInvalidStateTransition) ||
		errors.Is(err, domainErrors.ErrOwnershipMismatch) ||
		errors.Is(err, domainErrors.ErrTransactionNotSubmitted) ||
		errors.Is(err, domainErrors.ErrMalformedMessage) ||
		errors.Is(err, domainErrors.ErrUnknownEventKind)
}
