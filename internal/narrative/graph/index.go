package graph

import "fmt"

// index maps every id in a project to its entity. It is built once after load
// and never mutated.
type index struct {
	boards      map[BoardID]*Board
	elements    map[ElementID]*Element
	connections map[ConnectionID]*Connection
	branches    map[BranchID]*Branch
	conditions  map[ConditionID]*Condition
	jumpers     map[JumperID]*Jumper
	components  map[ComponentID]*Component
	covers      map[CoverID]*Cover
	// outgoing lists connections by source, in authored order.
	outgoing map[Ref][]*Connection
}

// buildIndex indexes boards.
//
// Postcondition: Returns a MalformedError on the first id used twice anywhere
// in the project, whatever the kinds of the two entities.
func buildIndex(boards []*Board) (*index, error) {
	idx := &index{
		boards:      make(map[BoardID]*Board),
		elements:    make(map[ElementID]*Element),
		connections: make(map[ConnectionID]*Connection),
		branches:    make(map[BranchID]*Branch),
		conditions:  make(map[ConditionID]*Condition),
		jumpers:     make(map[JumperID]*Jumper),
		components:  make(map[ComponentID]*Component),
		covers:      make(map[CoverID]*Cover),
		outgoing:    make(map[Ref][]*Connection),
	}
	// Visit counters share one string-keyed table, so ids must not collide
	// across kinds either.
	seen := make(map[string]Kind)
	claim := func(kind Kind, id string) error {
		prev, ok := seen[id]
		if !ok {
			seen[id] = kind
			return nil
		}
		reason := "duplicate id"
		if prev != kind {
			reason = fmt.Sprintf("duplicate id (already used by %s)", prev)
		}
		return &MalformedError{Kind: kind, ID: id, Index: -1, Reason: reason}
	}

	for _, b := range boards {
		if err := claim(KindBoard, string(b.ID)); err != nil {
			return nil, err
		}
		idx.boards[b.ID] = b
		for _, e := range b.Elements {
			if err := claim(KindElement, string(e.ID)); err != nil {
				return nil, err
			}
			idx.elements[e.ID] = e
		}
		for _, c := range b.Connections {
			if err := claim(KindConnection, string(c.ID)); err != nil {
				return nil, err
			}
			idx.connections[c.ID] = c
			idx.outgoing[c.Source] = append(idx.outgoing[c.Source], c)
		}
		for _, br := range b.Branches {
			if err := claim(KindBranch, string(br.ID)); err != nil {
				return nil, err
			}
			idx.branches[br.ID] = br
		}
		for _, c := range b.Conditions {
			if err := claim(KindCondition, string(c.ID)); err != nil {
				return nil, err
			}
			idx.conditions[c.ID] = c
		}
		for _, j := range b.Jumpers {
			if err := claim(KindJumper, string(j.ID)); err != nil {
				return nil, err
			}
			idx.jumpers[j.ID] = j
		}
		for _, c := range b.Components {
			if err := claim(KindComponent, string(c.ID)); err != nil {
				return nil, err
			}
			idx.components[c.ID] = c
		}
		for _, c := range b.Covers {
			if err := claim(KindCover, string(c.ID)); err != nil {
				return nil, err
			}
			idx.covers[c.ID] = c
		}
	}
	return idx, nil
}

// Board returns the board with id.
func (p *Project) Board(id BoardID) (*Board, error) {
	if b, ok := p.idx.boards[id]; ok {
		return b, nil
	}
	return nil, unknown(KindBoard, string(id))
}

// Element returns the element with id.
func (p *Project) Element(id ElementID) (*Element, error) {
	if e, ok := p.idx.elements[id]; ok {
		return e, nil
	}
	return nil, unknown(KindElement, string(id))
}

// Connection returns the connection with id.
func (p *Project) Connection(id ConnectionID) (*Connection, error) {
	if c, ok := p.idx.connections[id]; ok {
		return c, nil
	}
	return nil, unknown(KindConnection, string(id))
}

// Branch returns the branch with id.
func (p *Project) Branch(id BranchID) (*Branch, error) {
	if b, ok := p.idx.branches[id]; ok {
		return b, nil
	}
	return nil, unknown(KindBranch, string(id))
}

// Condition returns the condition with id.
func (p *Project) Condition(id ConditionID) (*Condition, error) {
	if c, ok := p.idx.conditions[id]; ok {
		return c, nil
	}
	return nil, unknown(KindCondition, string(id))
}

// Jumper returns the jumper with id.
func (p *Project) Jumper(id JumperID) (*Jumper, error) {
	if j, ok := p.idx.jumpers[id]; ok {
		return j, nil
	}
	return nil, unknown(KindJumper, string(id))
}

// Component returns the component with id.
func (p *Project) Component(id ComponentID) (*Component, error) {
	if c, ok := p.idx.components[id]; ok {
		return c, nil
	}
	return nil, unknown(KindComponent, string(id))
}

// Cover returns the cover with id.
func (p *Project) Cover(id CoverID) (*Cover, error) {
	if c, ok := p.idx.covers[id]; ok {
		return c, nil
	}
	return nil, unknown(KindCover, string(id))
}

// Outgoing returns the connections whose source is from, in authored order.
// The returned slice must not be modified.
func (p *Project) Outgoing(from Ref) []*Connection {
	return p.idx.outgoing[from]
}

// Dangling returns the error reported when from's reference to to does not
// resolve.
func Dangling(from, to Ref) error {
	return &DanglingReferenceError{From: from, To: to}
}

// DanglingReferences checks every cross-reference in the project once.
//
// Postcondition: Returns one DanglingReferenceError per unresolved reference,
// in board order; nil when the project is referentially intact.
func (p *Project) DanglingReferences() []error {
	var errs []error
	check := func(from, to Ref, ok bool) {
		if !ok {
			errs = append(errs, Dangling(from, to))
		}
	}

	if p.StartingElement != "" {
		_, ok := p.idx.elements[p.StartingElement]
		check(Ref{Kind: KindProject, ID: p.Name}, ElementRef(p.StartingElement), ok)
	}
	for _, b := range p.Boards {
		for _, e := range b.Elements {
			from := ElementRef(e.ID)
			if e.Cover != "" {
				_, ok := p.idx.covers[e.Cover]
				check(from, Ref{Kind: KindCover, ID: string(e.Cover)}, ok)
			}
			for _, c := range e.Components {
				_, ok := p.idx.components[c]
				check(from, Ref{Kind: KindComponent, ID: string(c)}, ok)
			}
		}
		for _, c := range b.Connections {
			from := ConnectionRef(c.ID)
			check(from, c.Source, p.resolves(c.Source))
			check(from, c.Target, p.resolves(c.Target))
		}
		for _, br := range b.Branches {
			from := BranchRef(br.ID)
			if br.Element != "" {
				_, ok := p.idx.elements[br.Element]
				check(from, ElementRef(br.Element), ok)
			}
			for _, opt := range br.Options {
				_, ok := p.idx.connections[opt.Connection]
				check(from, ConnectionRef(opt.Connection), ok)
				_, ok = p.idx.conditions[opt.Condition]
				check(from, ConditionRef(opt.Condition), ok)
			}
			if br.HasDefault() {
				_, ok := p.idx.connections[br.Default]
				check(from, ConnectionRef(br.Default), ok)
			}
		}
		for _, j := range b.Jumpers {
			from := JumperRef(j.ID)
			_, ok := p.idx.boards[j.TargetBoard]
			check(from, BoardRef(j.TargetBoard), ok)
			e, ok := p.idx.elements[j.TargetElement]
			check(from, ElementRef(j.TargetElement), ok && e.Board == j.TargetBoard)
		}
	}
	return errs
}

func (p *Project) resolves(r Ref) bool {
	var ok bool
	switch r.Kind {
	case KindElement:
		_, ok = p.idx.elements[ElementID(r.ID)]
	case KindBranch:
		_, ok = p.idx.branches[BranchID(r.ID)]
	case KindJumper:
		_, ok = p.idx.jumpers[JumperID(r.ID)]
	}
	return ok
}
