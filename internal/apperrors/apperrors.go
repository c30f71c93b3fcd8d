package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError rejects bad input before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthorizationError means the caller lacks the role or ownership
// required for the action.
type AuthorizationError struct {
	CallerID string
	Action   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("caller %s not allowed to %s", e.CallerID, e.Action)
}

// StateError means the operation is not legal from the entity's
// current status.
type StateError struct {
	Entity string
	Status string
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %s in status %s", e.Op, e.Entity, e.Status)
}

// InvalidTransitionError is the state-machine rejection for a
// transition outside the table.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// PaymentRequiredError means a trip start was attempted without held
// escrow.
type PaymentRequiredError struct {
	BookingID string
}

func (e *PaymentRequiredError) Error() string {
	return fmt.Sprintf("booking %s has no held escrow", e.BookingID)
}

// NotFoundError means a referenced id is absent.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// HTTPStatus maps an error to the status code the API layer should
// return. Unrecognized errors are treated as internal.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		ae *AuthorizationError
		se *StateError
		te *InvalidTransitionError
		pe *PaymentRequiredError
		ne *NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ae):
		return http.StatusForbidden
	case errors.As(err, &se), errors.As(err, &te):
		return http.StatusConflict
	case errors.As(err, &pe):
		return http.StatusPaymentRequired
	case errors.As(err, &ne):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
