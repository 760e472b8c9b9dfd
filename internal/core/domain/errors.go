package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidReservation = errors.New("invalid reservation")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrConflict           = errors.New("version conflict")
	ErrNotFound           = errors.New("not found")
	ErrDealNotActive      = errors.New("deal not active")
	ErrPurchaseLimit      = errors.New("purchase quantity out of policy bounds")
)

// ValidationError reports malformed constructor input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return errors.WithStack(&ValidationError{Field: field, Reason: reason})
}

// TransitionError names the rejected source and target state.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
