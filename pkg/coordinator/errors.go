// Package coordinator implements the per-queue authoritative state
// machine: one goroutine per live queue owns all mutations, serialized
// through a bounded mailbox, with ordered snapshot broadcasts and the
// call-window timer.
package coordinator

import (
	"errors"
	"fmt"
)

// Conflict sentinels carry the stable wire strings clients switch on.
var (
	// ErrQueueClosed rejects joins and host mutations on a closed queue.
	ErrQueueClosed = errors.New("queue_closed")

	// ErrQueueFull rejects joins when waiting+called parties reach maxGuests.
	ErrQueueFull = errors.New("queue_full")

	// ErrAlreadyJoined rejects a second live join by the same
	// authenticated user on a queue that requires identity.
	ErrAlreadyJoined = errors.New("already_joined")

	// ErrTerminalState rejects transitions out of served/left/no_show/kicked.
	ErrTerminalState = errors.New("terminal_state")

	// ErrAuthRequired rejects anonymous joins on queues that require a
	// signed-in identity.
	ErrAuthRequired = errors.New("auth_required")

	// ErrPartyNotFound is returned for unknown party ids.
	ErrPartyNotFound = errors.New("party_not_found")

	// ErrBusy is returned when a coordinator mailbox is at its high-water
	// mark or the coordinator has shut down.
	ErrBusy = errors.New("busy")

	// ErrStorage wraps persistence failures; the mutation did not happen.
	ErrStorage = errors.New("storage_error")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a field-level validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// storageErr tags a persistence failure with the storage_error sentinel.
func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
