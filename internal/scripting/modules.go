package scripting

import (
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// evalContext is the per-evaluation state reachable from Lua built-ins.
type evalContext struct {
	contextID string
	visits    map[string]uint64
	text      strings.Builder
	events    []string
}

// builtins names the globals RegisterModules defines.
var builtins = []string{"visits", "emit", "show", "engine"}

var keywords = []string{
	"and", "break", "do", "else", "elseif", "end", "false", "for", "function",
	"goto", "if", "in", "local", "nil", "not", "or", "repeat", "return", "then",
	"true", "until", "while",
}

var reservedNames = sync.OnceValue(func() map[string]bool {
	names := make(map[string]bool)
	L, cancel := NewSandboxedState(0)
	defer cancel()
	defer L.Close()
	L.G.Global.ForEach(func(k, _ lua.LValue) {
		if s, ok := k.(lua.LString); ok {
			names[string(s)] = true
		}
	})
	for _, n := range builtins {
		names[n] = true
	}
	for _, n := range keywords {
		names[n] = true
	}
	return names
})

// Reserved reports whether name is a Lua keyword, a global of the sandboxed
// state, or a script built-in. A variable bound under such a name would be
// unreachable or would shadow the global.
func Reserved(name string) bool {
	return reservedNames()[name]
}

// RegisterModules registers the script built-ins and the engine.* table into L.
//
// Built-ins:
//   - visits([id]) returns the visit count of id, or of the evaluated entity
//     when id is omitted. Unknown ids count 0.
//   - emit(name) records a named event.
//   - show(...) appends its arguments to the rendered text at the current
//     position.
//
// Precondition: L must be from NewSandboxedState; ec must be non-nil.
// Postcondition: visits, emit, show, and engine globals are defined in L.
func (r *Runner) RegisterModules(L *lua.LState, ec *evalContext) {
	L.SetGlobal("visits", L.NewFunction(func(L *lua.LState) int {
		id := L.OptString(1, ec.contextID)
		L.Push(lua.LNumber(ec.visits[id]))
		return 1
	}))
	L.SetGlobal("emit", L.NewFunction(func(L *lua.LState) int {
		ec.events = append(ec.events, L.CheckString(1))
		return 0
	}))
	L.SetGlobal("show", L.NewFunction(func(L *lua.LState) int {
		for i := 1; i <= L.GetTop(); i++ {
			ec.text.WriteString(formatValue(L.Get(i), ""))
		}
		return 0
	}))

	engine := L.NewTable()
	L.SetField(engine, "log", r.newLogModule(L, ec.contextID))
	L.SetGlobal("engine", engine)
}

// newLogModule returns the engine.log table. Messages go to the runner's
// logger tagged with the evaluated entity id.
func (r *Runner) newLogModule(L *lua.LState, contextID string) *lua.LTable {
	mod := L.NewTable()
	level := func(log func(string, ...zap.Field)) *lua.LFunction {
		return L.NewFunction(func(L *lua.LState) int {
			log(L.CheckString(1), zap.String("context", contextID))
			return 0
		})
	}
	L.SetField(mod, "debug", level(r.logger.Debug))
	L.SetField(mod, "info", level(r.logger.Info))
	L.SetField(mod, "warn", level(r.logger.Warn))
	return mod
}
