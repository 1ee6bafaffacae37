package flow

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/cory-johannsen/weave/internal/narrative/events"
	"github.com/cory-johannsen/weave/internal/narrative/graph"
	"github.com/cory-johannsen/weave/internal/narrative/localize"
	"github.com/cory-johannsen/weave/internal/narrative/markup"
	"github.com/cory-johannsen/weave/internal/narrative/state"
	"github.com/cory-johannsen/weave/internal/scripting"
)

// Session is one playthrough. It is not safe for concurrent use; the host
// serializes calls into a session. Several sessions may share one project.
type Session struct {
	id      string
	project *graph.Project
	runner  Evaluator
	hub     *events.Hub
	logger  *zap.Logger
	vars    *state.Variables
	visits  *state.Visits
	locale  localize.Policy
	strip   bool
	maxHops int
}

// Rendered is the result of TranspileObject.
type Rendered struct {
	Element *graph.Element
	Board   *graph.Board
	// Title is the localized display title.
	Title string
	// Text is the rendered content, stripped of markup when the session
	// strips markup.
	Text   string
	Events []string
}

// Label is the result of TranspileConnection.
type Label struct {
	Connection *graph.Connection
	Board      *graph.Board
	Text       string
	Events     []string
}

// ConditionResult is the result of TranspileCondition.
type ConditionResult struct {
	Condition *graph.Condition
	Fired     bool
	Events    []string
}

// ID returns the session id carried in logs and events.
func (s *Session) ID() string { return s.id }

// Project returns the project being played.
func (s *Session) Project() *graph.Project { return s.project }

// TranspileObject renders the element with id.
//
// The element's visit counter advances before its script is evaluated and
// stays advanced when evaluation fails.
//
// Postcondition: Returns an UnknownEntity error with no state change when id
// does not exist. On a script failure returns the element and board with
// empty text alongside an error matching scripting.ErrScriptEvaluation.
func (s *Session) TranspileObject(id graph.ElementID) (Rendered, error) {
	el, err := s.project.Element(id)
	if err != nil {
		return Rendered{}, err
	}
	board, err := s.project.Board(el.Board)
	if err != nil {
		return Rendered{}, graph.Dangling(graph.ElementRef(el.ID), graph.BoardRef(el.Board))
	}

	s.visits.Increment(string(id))
	r := Rendered{Element: el, Board: board, Title: s.Title(el)}

	out, err := s.evaluate(scripting.Request{
		Mode:      scripting.ModeText,
		Script:    s.localized(el, graph.FieldContent, el.Content),
		ContextID: string(id),
	})
	if err != nil {
		return r, err
	}
	r.Text = s.render(out.Text)
	r.Events = out.Events
	return r, nil
}

// TranspileConnection renders the label of the connection with id, or
// scriptOverride when it is non-empty. Connections are never visited.
//
// Postcondition: Returns an UnknownEntity error when id does not exist.
func (s *Session) TranspileConnection(id graph.ConnectionID, scriptOverride string) (Label, error) {
	c, err := s.project.Connection(id)
	if err != nil {
		return Label{}, err
	}
	board, err := s.project.Board(c.Board)
	if err != nil {
		return Label{}, graph.Dangling(graph.ConnectionRef(c.ID), graph.BoardRef(c.Board))
	}
	l := Label{Connection: c, Board: board}

	script := c.Label
	if scriptOverride != "" {
		script = scriptOverride
	}
	if script == "" {
		return l, nil
	}
	out, err := s.evaluate(scripting.Request{
		Mode:      scripting.ModeText,
		Script:    script,
		ContextID: string(id),
	})
	if err != nil {
		return l, err
	}
	l.Text = s.render(out.Text)
	l.Events = out.Events
	return l, nil
}

// TranspileCondition evaluates the condition with id. Its visit counter
// advances before evaluation.
//
// Postcondition: Returns an UnknownEntity error with no state change when id
// does not exist.
func (s *Session) TranspileCondition(id graph.ConditionID) (ConditionResult, error) {
	c, err := s.project.Condition(id)
	if err != nil {
		return ConditionResult{}, err
	}
	s.visits.Increment(string(id))

	out, err := s.evaluate(scripting.Request{
		Mode:      scripting.ModeCondition,
		Script:    c.Script,
		ContextID: string(id),
	})
	if err != nil {
		return ConditionResult{Condition: c}, err
	}
	return ConditionResult{Condition: c, Fired: out.Fired, Events: out.Events}, nil
}

// GetIsTargetBranch reports whether the source of the connection with connID
// is a branch recorded on the board with boardID, and returns that branch.
// It never changes state.
//
// Postcondition: Returns an UnknownEntity error when the board or connection
// does not exist.
func (s *Session) GetIsTargetBranch(boardID graph.BoardID, connID graph.ConnectionID) (bool, *graph.Branch, error) {
	board, err := s.project.Board(boardID)
	if err != nil {
		return false, nil, err
	}
	c, err := s.project.Connection(connID)
	if err != nil {
		return false, nil, err
	}
	if c.Source.Kind != graph.KindBranch {
		return false, nil, nil
	}
	br, ok := board.Branch(graph.BranchID(c.Source.ID))
	if !ok {
		return false, nil, nil
	}
	return true, br, nil
}

// GetConnectionsData returns the connection with connID on the board with
// boardID.
//
// Postcondition: Returns an UnknownEntity error when the board does not exist
// or does not hold the connection.
func (s *Session) GetConnectionsData(boardID graph.BoardID, connID graph.ConnectionID) (*graph.Connection, error) {
	board, err := s.project.Board(boardID)
	if err != nil {
		return nil, err
	}
	c, ok := board.Connection(connID)
	if !ok {
		return nil, &graph.UnknownEntityError{Kind: graph.KindConnection, ID: string(connID)}
	}
	return c, nil
}

// SetVariable overwrites the value of the variable whose id or name is key
// and publishes a variable-changed event. The value is not type-checked.
//
// Postcondition: Returns an UnknownEntity error with no state change when key
// names no variable.
func (s *Session) SetVariable(key, value string) (state.Variable, error) {
	v, err := s.vars.Set(key, value)
	if err != nil {
		if errors.Is(err, state.ErrUnknownVariable) {
			return state.Variable{}, &graph.UnknownEntityError{Kind: graph.KindVariable, ID: key}
		}
		return state.Variable{}, err
	}
	s.logger.Debug("flow: variable set", zap.String("variable", v.ID), zap.String("value", value))
	s.publishChanges([]state.Variable{v}, "")
	return v, nil
}

// Variable returns the variable whose id or name is key.
func (s *Session) Variable(key string) (state.Variable, bool) {
	return s.vars.Get(key)
}

// Variables returns a snapshot of all variables in declaration order.
func (s *Session) Variables() []state.Variable {
	return s.vars.Snapshot()
}

// Visits returns the visit count of an element or condition id.
func (s *Session) Visits(id string) uint64 {
	return s.visits.Count(id)
}

// VisitTable returns a snapshot of every visit counter.
func (s *Session) VisitTable() map[string]uint64 {
	return s.visits.Snapshot()
}

// Locale returns the active translation policy.
func (s *Session) Locale() localize.Policy {
	return s.locale
}

// SetLocale switches the requested locale and enables localized lookup.
//
// Postcondition: Returns an error and keeps the current policy when iso is
// not a well-formed BCP 47 tag.
func (s *Session) SetLocale(iso string) error {
	if _, err := language.Parse(iso); err != nil {
		return fmt.Errorf("invalid locale %q: %w", iso, err)
	}
	s.locale = s.locale.WithLocale(iso)
	s.locale.Enabled = true
	return nil
}

// Title returns the localized display title of el.
func (s *Session) Title(el *graph.Element) string {
	return s.render(s.localized(el, graph.FieldTitle, el.Title))
}

func (s *Session) localized(el *graph.Element, field, authored string) string {
	if t, ok := s.locale.Lookup(el.Translation(field)); ok {
		return t
	}
	return authored
}

func (s *Session) render(text string) string {
	if s.strip {
		return markup.Strip(text)
	}
	return text
}

// evaluate runs req against snapshots of the session state, then applies the
// requested variable changes and publishes the resulting events.
func (s *Session) evaluate(req scripting.Request) (scripting.Output, error) {
	req.Variables = s.vars.Snapshot()
	req.Visits = s.visits.Snapshot()

	out, err := s.runner.Evaluate(req)
	if err != nil {
		s.logger.Warn("flow: script evaluation failed",
			zap.String("context", req.ContextID),
			zap.Error(err),
		)
		return out, err
	}

	var changed []state.Variable
	for _, c := range out.Changes {
		v, err := s.vars.Set(c.ID, c.Value)
		if err != nil {
			s.logger.Warn("flow: script changed undeclared variable", zap.String("variable", c.ID))
			continue
		}
		changed = append(changed, v)
	}
	s.publishChanges(changed, req.ContextID)
	for _, name := range out.Events {
		publish(s.hub, events.Event{
			Kind:      events.KindScriptEvent,
			Time:      time.Now(),
			SessionID: s.id,
			Project:   s.project,
			Name:      name,
			Source:    req.ContextID,
		})
	}

	s.logger.Debug("flow: script evaluated",
		zap.String("context", req.ContextID),
		zap.Bool("fired", out.Fired),
		zap.Strings("events", out.Events),
		zap.Int("changes", len(changed)),
	)
	return out, nil
}

func (s *Session) publishChanges(changed []state.Variable, source string) {
	if len(changed) == 0 {
		return
	}
	publish(s.hub, events.Event{
		Kind:      events.KindVariablesChanged,
		Time:      time.Now(),
		SessionID: s.id,
		Project:   s.project,
		Variables: s.vars.Snapshot(),
		Changed:   changed,
		Source:    source,
	})
}
