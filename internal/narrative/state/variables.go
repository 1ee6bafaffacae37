// Package state holds the mutable per-session runtime state of a playthrough:
// variable values and visit counters.
//
// Neither store is safe for concurrent use. A session owns its stores and the
// host serializes calls into it.
package state

import (
	"errors"
	"fmt"
)

// ErrUnknownVariable is returned when a variable id or name is not declared.
var ErrUnknownVariable = errors.New("unknown variable")

// Variable is one project variable. Value is string-encoded; Type is a hint
// ("integer", "float", "boolean", "string") that is not enforced here.
type Variable struct {
	ID    string
	Name  string
	Type  string
	Value string
}

// Variables is the session-local variable table.
type Variables struct {
	vars   []Variable
	byID   map[string]int
	byName map[string]int
}

// NewVariables creates a table seeded with a copy of defaults.
//
// Postcondition: Mutations on the returned table never touch defaults.
func NewVariables(defaults []Variable) *Variables {
	v := &Variables{
		vars:   make([]Variable, len(defaults)),
		byID:   make(map[string]int, len(defaults)),
		byName: make(map[string]int, len(defaults)),
	}
	copy(v.vars, defaults)
	for i, d := range v.vars {
		v.byID[d.ID] = i
		if d.Name != "" {
			v.byName[d.Name] = i
		}
	}
	return v
}

func (v *Variables) find(key string) (int, bool) {
	if i, ok := v.byID[key]; ok {
		return i, true
	}
	i, ok := v.byName[key]
	return i, ok
}

// Get returns the variable whose id, or failing that name, is key.
//
// Postcondition: Returns (variable, true) if found, or (Variable{}, false) otherwise.
func (v *Variables) Get(key string) (Variable, bool) {
	i, ok := v.find(key)
	if !ok {
		return Variable{}, false
	}
	return v.vars[i], true
}

// Set overwrites the value of the variable whose id or name is key. The value
// is not type-checked.
//
// Postcondition: Returns the updated variable, or an error wrapping
// ErrUnknownVariable with the table unchanged.
func (v *Variables) Set(key, value string) (Variable, error) {
	i, ok := v.find(key)
	if !ok {
		return Variable{}, fmt.Errorf("%w: %q", ErrUnknownVariable, key)
	}
	v.vars[i].Value = value
	return v.vars[i], nil
}

// Snapshot returns a copy of all variables in declaration order.
func (v *Variables) Snapshot() []Variable {
	out := make([]Variable, len(v.vars))
	copy(out, v.vars)
	return out
}

// Len returns the number of declared variables.
func (v *Variables) Len() int {
	return len(v.vars)
}
