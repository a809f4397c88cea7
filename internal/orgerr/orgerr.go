// Package orgerr defines the error kinds returned by the organization authority core.
//
// Every error produced by repositories and services wraps exactly one of the
// sentinel kinds below, so callers can branch with errors.Is and handlers can
// map a kind to an HTTP status without parsing messages.
package orgerr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicateCode          = errors.New("duplicate code")
	ErrCycle                  = errors.New("hierarchy cycle")
	ErrInvalidReference       = errors.New("invalid reference")
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrAlreadyEnded           = errors.New("assignment already ended")
	ErrInvalidWindow          = errors.New("invalid time window")
	ErrNoActiveOccupant       = errors.New("no active occupant")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrStaleSwap              = errors.New("stale swap request")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrOverlappingAssignment  = errors.New("overlapping assignment")
	ErrDelegationOverlap      = errors.New("overlapping delegation")
	ErrInvalidArgument        = errors.New("invalid argument")
)

var kindNames = []struct {
	kind error
	name string
}{
	{ErrNotFound, "NOT_FOUND"},
	{ErrDuplicateCode, "DUPLICATE_CODE"},
	{ErrCycle, "CYCLE"},
	{ErrInvalidReference, "INVALID_REFERENCE"},
	{ErrCapacityExceeded, "CAPACITY_EXCEEDED"},
	{ErrAlreadyEnded, "ALREADY_ENDED"},
	{ErrInvalidWindow, "INVALID_WINDOW"},
	{ErrNoActiveOccupant, "NO_ACTIVE_OCCUPANT"},
	{ErrInvalidStateTransition, "INVALID_STATE_TRANSITION"},
	{ErrStaleSwap, "STALE_SWAP"},
	{ErrConcurrentModification, "CONCURRENT_MODIFICATION"},
	{ErrStoreUnavailable, "STORE_UNAVAILABLE"},
	{ErrOverlappingAssignment, "OVERLAPPING_ASSIGNMENT"},
	{ErrDelegationOverlap, "DELEGATION_OVERLAP"},
	{ErrInvalidArgument, "INVALID_ARGUMENT"},
}

// New wraps kind with a formatted detail message.
func New(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Unavailable marks a collaborator failure as ErrStoreUnavailable while keeping the cause reachable.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// KindName returns the stable name of the kind wrapped by err, or "INTERNAL".
func KindName(err error) string {
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return "INTERNAL"
}

// IsRetryable reports whether the caller should re-read current state and retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrStaleSwap) || errors.Is(err, ErrStoreUnavailable)
}
