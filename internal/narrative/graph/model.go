// Package graph provides the narrative graph model: boards, elements,
// connections, branches, conditions, and jumpers, plus the loader that builds
// it from a project document.
//
// A loaded Project is read-only and may be shared by any number of play
// sessions.
package graph

import (
	"github.com/cory-johannsen/weave/internal/narrative/localize"
	"github.com/cory-johannsen/weave/internal/narrative/state"
)

// Kind names an entity kind.
type Kind string

// Entity kinds.
const (
	KindProject    Kind = "project"
	KindBoard      Kind = "board"
	KindElement    Kind = "element"
	KindConnection Kind = "connection"
	KindBranch     Kind = "branch"
	KindCondition  Kind = "condition"
	KindJumper     Kind = "jumper"
	KindComponent  Kind = "component"
	KindCover      Kind = "cover"
	KindAttribute  Kind = "attribute"
	KindVariable   Kind = "variable"
	KindLocale     Kind = "locale"
)

// Opaque entity ids. They are unique within a project.
type (
	BoardID      string
	ElementID    string
	ConnectionID string
	BranchID     string
	ConditionID  string
	JumperID     string
	ComponentID  string
	CoverID      string
)

// Ref is a typed cross-reference. Connection endpoints are Refs whose Kind is
// KindElement, KindBranch, or KindJumper, decided once at load time.
type Ref struct {
	Kind Kind
	ID   string
}

// ElementRef returns a Ref to an element.
func ElementRef(id ElementID) Ref { return Ref{Kind: KindElement, ID: string(id)} }

// BranchRef returns a Ref to a branch.
func BranchRef(id BranchID) Ref { return Ref{Kind: KindBranch, ID: string(id)} }

// JumperRef returns a Ref to a jumper.
func JumperRef(id JumperID) Ref { return Ref{Kind: KindJumper, ID: string(id)} }

// ConnectionRef returns a Ref to a connection.
func ConnectionRef(id ConnectionID) Ref { return Ref{Kind: KindConnection, ID: string(id)} }

// ConditionRef returns a Ref to a condition.
func ConditionRef(id ConditionID) Ref { return Ref{Kind: KindCondition, ID: string(id)} }

// BoardRef returns a Ref to a board.
func BoardRef(id BoardID) Ref { return Ref{Kind: KindBoard, ID: string(id)} }

// Attribute is a typed key/value pair. Type is informational.
type Attribute struct {
	Name  string
	Type  string
	Value string
}

// Asset is a file attached to a component.
type Asset struct {
	Name string
	Type string
	File string
}

// Component is descriptive payload referenced by elements.
type Component struct {
	ID         ComponentID
	Board      BoardID
	Name       string
	Assets     []Asset
	Attributes []Attribute
}

// Cover is display image metadata referenced by elements.
type Cover struct {
	ID    CoverID
	Board BoardID
	Type  string
	File  string
}

// Translatable element fields.
const (
	FieldTitle   = "title"
	FieldContent = "content"
)

// Element is a narrative beat.
type Element struct {
	ID ElementID
	// Board is the owning board's id; a lookup key, not an ownership edge.
	Board BoardID
	// Title is the optional display title.
	Title string
	// Content is the raw script body. It is evaluated, never stripped at load.
	Content string
	// Cover is the optional cover reference. Empty = none.
	Cover      CoverID
	Components []ComponentID
	Attributes []Attribute
	// Translations holds per-field translations keyed by FieldTitle/FieldContent.
	Translations map[string]*localize.Text
}

// Translation returns the translations of field, or nil.
func (e *Element) Translation(field string) *localize.Text {
	return e.Translations[field]
}

// Connection is a directed edge between flow units.
type Connection struct {
	ID    ConnectionID
	Board BoardID
	// Label is the optional label script.
	Label  string
	Source Ref
	Target Ref
}

// IsBranchMediated reports whether the connection leads into a branch.
func (c *Connection) IsBranchMediated() bool {
	return c.Target.Kind == KindBranch
}

// BranchOption pairs an outgoing connection with the condition guarding it.
type BranchOption struct {
	Connection ConnectionID
	Condition  ConditionID
}

// Branch is a conditional fan-out. Options are evaluated in authored order.
type Branch struct {
	ID    BranchID
	Board BoardID
	// Element is the owning element id. Empty when the branch is fed by
	// another branch.
	Element ElementID
	Options []BranchOption
	// Default is followed when no option fires. Empty = none.
	Default ConnectionID
}

// HasDefault reports whether the branch declares a default connection.
func (b *Branch) HasDefault() bool {
	return b.Default != ""
}

// Condition is a boolean-producing script.
type Condition struct {
	ID     ConditionID
	Board  BoardID
	Script string
}

// Jumper redirects flow to an element, possibly on another board.
type Jumper struct {
	ID    JumperID
	Board BoardID
	// Source is the optional id of the connection or element feeding the jumper.
	Source        string
	TargetBoard   BoardID
	TargetElement ElementID
}

// Board is a named subgraph. Every slice keeps authored order.
type Board struct {
	ID          BoardID
	Name        string
	Elements    []*Element
	Connections []*Connection
	Branches    []*Branch
	Jumpers     []*Jumper
	Conditions  []*Condition
	Components  []*Component
	Covers      []*Cover
}

// Connection returns the connection with id if it belongs to this board.
//
// Postcondition: Returns (conn, true) if found, or (nil, false) otherwise.
func (b *Board) Connection(id ConnectionID) (*Connection, bool) {
	for _, c := range b.Connections {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Branch returns the branch with id if it belongs to this board.
//
// Postcondition: Returns (branch, true) if found, or (nil, false) otherwise.
func (b *Board) Branch(id BranchID) (*Branch, bool) {
	for _, br := range b.Branches {
		if br.ID == id {
			return br, true
		}
	}
	return nil, false
}

// Project is a loaded narrative project.
type Project struct {
	Name string
	// StartingElement is the authored entry point; may be empty.
	StartingElement ElementID
	Boards          []*Board
	Locales         []localize.Locale
	// Variables holds the authored variable defaults in document order.
	Variables []state.Variable
	// Visits holds the initial visit count of every element and condition.
	Visits map[string]uint64

	idx *index
}

// HasLocales reports whether the project supports more than one locale.
func (p *Project) HasLocales() bool {
	return len(p.Locales) > 1
}

// DefaultLocale returns the project's default locale code, or "".
func (p *Project) DefaultLocale() string {
	return localize.DefaultLocale(p.Locales)
}

// Start returns the element a playthrough begins at: the authored starting
// element, or the first element of the first non-empty board.
//
// Postcondition: Returns an UnknownEntity error when the project has no elements.
func (p *Project) Start() (*Element, error) {
	if p.StartingElement != "" {
		return p.Element(p.StartingElement)
	}
	for _, b := range p.Boards {
		if len(b.Elements) > 0 {
			return b.Elements[0], nil
		}
	}
	return nil, unknown(KindElement, "")
}

// ElementCount returns the number of elements across all boards.
func (p *Project) ElementCount() int {
	return len(p.idx.elements)
}

// ConnectionCount returns the number of connections across all boards.
func (p *Project) ConnectionCount() int {
	return len(p.idx.connections)
}
