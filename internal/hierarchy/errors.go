package hierarchy

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownNode is returned (or wrapped in a panic) when a reference
	// does not resolve to a node.
	ErrUnknownNode = errors.New("unknown node")

	// ErrDuplicateNode is returned when a reference is registered twice.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrSelfLink is returned when a node is linked to itself.
	ErrSelfLink = errors.New("node cannot be its own upper")

	// ErrAlreadyLinked is returned when a link already exists.
	ErrAlreadyLinked = errors.New("already linked")

	// ErrNotLinked is returned when removing a link that does not exist.
	ErrNotLinked = errors.New("not linked")
)

// UnknownNodeError is the panic value of Graph.Node for a reference that
// was never registered. Resolving a node is a contract of the Context, so an
// unknown reference is a programming error rather than a recoverable one.
type UnknownNodeError struct {
	Ref string
}

// Error implements the error interface.
func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("hierarchy: %s %q", ErrUnknownNode, e.Ref)
}

// Unwrap allows errors.Is(err, ErrUnknownNode).
func (e *UnknownNodeError) Unwrap() error {
	return ErrUnknownNode
}

// LinkError describes a failed Link or Unlink.
type LinkError struct {
	Lower string
	Upper string
	Err   error
}

// Error implements the error interface.
func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s -> %s: %v", e.Lower, e.Upper, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *LinkError) Unwrap() error {
	return e.Err
}

// IsLinkError reports whether err is a LinkError. Uses errors.As to handle
// wrapped errors.
func IsLinkError(err error) bool {
	var le *LinkError
	return errors.As(err, &le)
}
