// Package neterr defines the error taxonomy shared by the device registry,
// the subnet allocator, and the platform adapters. Every failure that crosses
// the HTTP boundary is classified with a Kind so the dispatcher can map it to
// a status code without inspecting platform-specific errors.
package neterr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for API consumers.
type Kind string

const (
	// NameConflict is returned when a requested device name is already live.
	NameConflict Kind = "NameConflict"
	// NotFound is returned on delete/lookup of an absent entity.
	NotFound Kind = "NotFound"
	// OutOfRange is returned when a CIDR is outside the parent block or unparseable.
	OutOfRange Kind = "OutOfRange"
	// Overlap is returned when a CIDR intersects an existing allocation.
	Overlap Kind = "Overlap"
	// ResourceExhausted is returned when the platform refuses further creation.
	ResourceExhausted Kind = "ResourceExhausted"
	// PermissionDenied is returned when the OS rejected the privileged operation.
	PermissionDenied Kind = "PermissionDenied"
	// PlatformFailure covers any other OS-level error.
	PlatformFailure Kind = "PlatformFailure"
	// InconsistentState is returned when a rollback itself failed and the
	// registry invariant may be violated. Requires operator attention.
	InconsistentState Kind = "InconsistentState"
)

// Error carries a Kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error from a format string.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. Returns nil if err is nil. If err is
// already classified, the existing Kind is preserved.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var ne *Error
	if errors.As(err, &ne) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to PlatformFailure
// for unclassified errors.
func KindOf(err error) Kind {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Kind
	}
	return PlatformFailure
}

// IsKind reports whether the error chain carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the error detail without the Kind prefix, for use in API
// error bodies where the kind is carried separately.
func Message(err error) string {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Err.Error()
	}
	return err.Error()
}
