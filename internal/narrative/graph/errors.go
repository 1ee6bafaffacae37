package graph

import (
	"errors"
	"fmt"
)

// ErrMalformedProject is matched by every load failure.
var ErrMalformedProject = errors.New("malformed project")

// ErrUnknownEntity is matched by every failed lookup by id.
var ErrUnknownEntity = errors.New("unknown entity")

// ErrDanglingReference is matched when a cross-reference followed during
// resolution does not resolve. It also matches ErrUnknownEntity.
var ErrDanglingReference = errors.New("dangling reference")

// MalformedError describes why a project document could not be loaded.
type MalformedError struct {
	// Kind is the entity kind being parsed ("element", "connection", ...).
	Kind Kind
	// ID is the entity id when it was readable.
	ID string
	// Index is the entity's position in its list, or -1 when not applicable.
	Index int
	// Reason says what was wrong.
	Reason string
}

func (e *MalformedError) Error() string {
	switch {
	case e.ID != "":
		return fmt.Sprintf("malformed project: %s %q: %s", e.Kind, e.ID, e.Reason)
	case e.Index >= 0:
		return fmt.Sprintf("malformed project: %s #%d: %s", e.Kind, e.Index, e.Reason)
	default:
		return fmt.Sprintf("malformed project: %s: %s", e.Kind, e.Reason)
	}
}

// Is reports whether target is ErrMalformedProject.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedProject
}

// UnknownEntityError reports a lookup for an id that is not in the graph.
type UnknownEntityError struct {
	Kind Kind
	ID   string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.ID)
}

// Is reports whether target is ErrUnknownEntity.
func (e *UnknownEntityError) Is(target error) bool {
	return target == ErrUnknownEntity
}

// DanglingReferenceError reports a cross-reference that does not resolve.
type DanglingReferenceError struct {
	// From is the entity holding the reference.
	From Ref
	// To is the reference that failed to resolve.
	To Ref
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s %q references unknown %s %q", e.From.Kind, e.From.ID, e.To.Kind, e.To.ID)
}

// Is reports whether target is ErrDanglingReference or ErrUnknownEntity.
func (e *DanglingReferenceError) Is(target error) bool {
	return target == ErrDanglingReference || target == ErrUnknownEntity
}

func unknown(kind Kind, id string) error {
	return &UnknownEntityError{Kind: kind, ID: id}
}
