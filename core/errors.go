package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPipeline is returned when a pipeline is built without executors.
	ErrEmptyPipeline = errors.New("pipeline requires at least one executor")

	// ErrNotFound matches resolution errors for unknown managed agents.
	ErrNotFound = errors.New("capability not found")
	// ErrUnreachable matches resolution errors caused by transport failures.
	ErrUnreachable = errors.New("capability unreachable")
	// ErrInvalidDescriptor matches resolution errors caused by malformed agent cards.
	ErrInvalidDescriptor = errors.New("invalid capability descriptor")
)

// ResolutionReason classifies why a member could not be resolved.
type ResolutionReason int

const (
	NotFound ResolutionReason = iota + 1
	Unreachable
	InvalidDescriptor
)

func (r ResolutionReason) String() string {
	switch r {
	case NotFound:
		return "not found"
	case Unreachable:
		return "unreachable"
	case InvalidDescriptor:
		return "invalid descriptor"
	default:
		return "unknown"
	}
}

func (r ResolutionReason) sentinel() error {
	switch r {
	case NotFound:
		return ErrNotFound
	case Unreachable:
		return ErrUnreachable
	case InvalidDescriptor:
		return ErrInvalidDescriptor
	default:
		return nil
	}
}

// ResolutionError reports a failed capability resolution.
type ResolutionError struct {
	Reason ResolutionReason
	Member string // name or URL that was resolved
	Err    error  // underlying cause, optional
}

// NewResolutionError builds a ResolutionError.
func NewResolutionError(reason ResolutionReason, member string, err error) *ResolutionError {
	return &ResolutionError{Reason: reason, Member: member, Err: err}
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %s: %v", e.Member, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve %s: %s", e.Member, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ResolutionError) Unwrap() error { return e.Err }

// Is matches the sentinel error of the resolution reason.
func (e *ResolutionError) Is(target error) bool {
	s := e.Reason.sentinel()
	return s != nil && target == s
}
