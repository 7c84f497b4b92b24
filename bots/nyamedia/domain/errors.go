package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a registration or request does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when adjudicating a request that is
	// no longer submitted, or into a non-terminal status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicateRequest is returned when (source, media_id) was already requested.
	ErrDuplicateRequest = errors.New("media already requested")
	// ErrAlreadyRegistered is returned when a chat identity already has a registration.
	ErrAlreadyRegistered = errors.New("already registered")
)

// InputError is a user input problem. The dialogue re-prompts in the same state.
type InputError struct {
	Prompt string
}

func (e *InputError) Error() string { return "invalid input: " + e.Prompt }

// ExternalError wraps a failed call to a third-party service. Code is a short
// tag shown to users next to the support reference.
type ExternalError struct {
	Service string
	Code    string
	Status  int
	Err     error
}

func (e *ExternalError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

func (e *ExternalError) Tag() string { return e.Code }

// RejectedError is a provider refusal whose reason is meaningful to the
// user, such as a taken account name.
type RejectedError struct {
	Service string
	Reason  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Service, e.Reason)
}

// PersistenceError wraps a database failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Tag() string { return "DB" }

// DeliveryError is a failed outbound notification. It is logged, never
// surfaced to the caller that triggered it.
type DeliveryError struct {
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("deliver to %d: %v", e.ChatID, e.Err) }

func (e *DeliveryError) Unwrap() error { return e.Err }
