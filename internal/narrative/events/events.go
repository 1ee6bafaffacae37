// Package events carries runtime notifications from the narrative engine to
// observers: project loads, variable changes, and script-emitted events.
package events

import (
	"time"

	"github.com/cory-johannsen/weave/internal/narrative/graph"
	"github.com/cory-johannsen/weave/internal/narrative/state"
)

// Kind discriminates Event.
type Kind string

const (
	// KindProjectLoaded is published once per successful project load.
	KindProjectLoaded Kind = "project-loaded"
	// KindVariablesChanged is published after a script or an explicit set
	// changes at least one variable.
	KindVariablesChanged Kind = "variable-changed"
	// KindScriptEvent is published for every emit() call, in call order.
	KindScriptEvent Kind = "named-event"
)

// Event is one notification.
type Event struct {
	Kind Kind
	Time time.Time
	// SessionID is empty for KindProjectLoaded.
	SessionID string
	// Project is the parsed project for KindProjectLoaded, and the project the
	// session plays otherwise. Receivers must treat it as read-only.
	Project *graph.Project
	// Variables is the whole variable table after the change, in declaration
	// order (KindVariablesChanged only).
	Variables []state.Variable
	// Changed is the subset of Variables whose value changed.
	Changed []state.Variable
	// Name is the emitted event name (KindScriptEvent only).
	Name string
	// Source is the id of the element, connection, or condition whose script
	// produced the event. Empty for explicit sets and loads.
	Source string
}
