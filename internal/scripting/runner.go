package scripting

import (
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/weave/internal/narrative/state"
)

// ErrScriptEvaluation is matched by every evaluation failure.
var ErrScriptEvaluation = errors.New("script evaluation failed")

// ScriptError carries the failing script and the id it was evaluated for.
type ScriptError struct {
	Script    string
	ContextID string
	Err       error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("evaluating script for %q: %v", e.ContextID, e.Err)
}

// Unwrap returns the underlying Lua error.
func (e *ScriptError) Unwrap() error { return e.Err }

// Is reports whether target is ErrScriptEvaluation.
func (e *ScriptError) Is(target error) bool { return target == ErrScriptEvaluation }

// Mode selects how a script is read.
type Mode int

const (
	// ModeText reads text interleaved with code blocks (element content, labels).
	ModeText Mode = iota
	// ModeCondition reads a boolean expression.
	ModeCondition
)

// Request is one evaluation. Variables and Visits are snapshots; the runner
// never writes to them.
type Request struct {
	Mode   Mode
	Script string
	// ContextID is the element, connection, or condition id being evaluated.
	// visits() with no argument reads this id.
	ContextID string
	Variables []state.Variable
	Visits    map[string]uint64
}

// VariableChange is an assignment a script made to a declared variable.
type VariableChange struct {
	ID    string
	Name  string
	Value string
}

// Output is the result of one evaluation.
type Output struct {
	// Text is the rendered text. Empty for conditions.
	Text string
	// Fired is the condition result. Always false in ModeText.
	Fired bool
	// Events lists emit() calls in call order.
	Events []string
	// Changes lists declared variables whose value differs after evaluation,
	// in declaration order. The caller decides whether to apply them.
	Changes []VariableChange
}

// Runner evaluates scripts, each in a fresh sandboxed VM.
//
// Runner holds no per-evaluation state and is safe for concurrent use.
type Runner struct {
	instLimit int
	logger    *zap.Logger
}

// NewRunner creates a Runner.
//
// Precondition: instLimit >= 0 (0 = DefaultInstructionLimit); logger must be non-nil.
// Postcondition: Returns a non-nil Runner.
func NewRunner(instLimit int, logger *zap.Logger) *Runner {
	return &Runner{instLimit: instLimit, logger: logger}
}

// Evaluate runs req.Script against the request snapshots.
//
// Postcondition: Returns the Output, or a *ScriptError (matching
// ErrScriptEvaluation) for syntax errors, runtime errors, and exceeded
// instruction limits. req.Variables and req.Visits are never modified.
func (r *Runner) Evaluate(req Request) (Output, error) {
	L, cancel := NewSandboxedState(r.instLimit)
	defer cancel()
	defer L.Close()

	bound := bindVariables(L, req.Variables)
	ec := &evalContext{contextID: req.ContextID, visits: req.Visits}
	r.RegisterModules(L, ec)

	var out Output
	var err error
	switch req.Mode {
	case ModeCondition:
		out.Fired, err = evalCondition(L, req.Script)
	default:
		err = evalText(L, ec, req.Script)
		out.Text = ec.text.String()
	}
	if err != nil {
		r.logger.Debug("scripting: evaluation failed",
			zap.String("context", req.ContextID),
			zap.Error(err),
		)
		return Output{}, &ScriptError{Script: req.Script, ContextID: req.ContextID, Err: err}
	}

	out.Events = ec.events
	out.Changes = collectChanges(L, req.Variables, bound)
	return out, nil
}

// evalText copies literal text to the output and runs each code block in
// order in L.
func evalText(L *lua.LState, ec *evalContext, script string) error {
	for _, seg := range segments(script) {
		if !seg.code {
			ec.text.WriteString(seg.text)
			continue
		}
		if err := L.DoString(seg.text); err != nil {
			return err
		}
	}
	return nil
}

// evalCondition evaluates script as an expression, or as a chunk whose first
// return value is the result.
func evalCondition(L *lua.LState, script string) (bool, error) {
	body := strings.TrimSpace(conditionBody(script))
	if body == "" {
		return false, nil
	}
	fn, err := L.LoadString("return " + body)
	if err != nil {
		fn, err = L.LoadString(body)
		if err != nil {
			return false, err
		}
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return false, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret), nil
}
