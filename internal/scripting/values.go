package scripting

import (
	"math"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/weave/internal/narrative/state"
)

// isNumeric reports whether a variable type hint names a number type.
func isNumeric(typ string) bool {
	switch strings.ToLower(typ) {
	case "integer", "int", "float", "double", "number":
		return true
	}
	return false
}

func isInteger(typ string) bool {
	switch strings.ToLower(typ) {
	case "integer", "int":
		return true
	}
	return false
}

func isBoolean(typ string) bool {
	switch strings.ToLower(typ) {
	case "boolean", "bool":
		return true
	}
	return false
}

// toLua converts a stored variable value to a Lua value using its type hint.
// Values that do not parse as their hinted type stay strings.
func toLua(v state.Variable) lua.LValue {
	switch {
	case isNumeric(v.Type):
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64); err == nil {
			return lua.LNumber(f)
		}
	case isBoolean(v.Type):
		if b, err := strconv.ParseBool(strings.TrimSpace(v.Value)); err == nil {
			return lua.LBool(b)
		}
	}
	return lua.LString(v.Value)
}

// formatValue renders a Lua value in stored form. typ is the variable type
// hint, or "" outside variable write-back.
func formatValue(v lua.LValue, typ string) string {
	switch x := v.(type) {
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<63 && (isInteger(typ) || math.Abs(f) < 1e15) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	case lua.LBool:
		return strconv.FormatBool(bool(x))
	case *lua.LNilType:
		return ""
	default:
		return v.String()
	}
}

// bindVariables sets each variable as a Lua global named after it and returns
// the bound values in declaration order. Reserved names are left unbound and
// their slot is nil.
func bindVariables(L *lua.LState, vars []state.Variable) []lua.LValue {
	bound := make([]lua.LValue, len(vars))
	for i, v := range vars {
		if Reserved(v.Name) {
			continue
		}
		bound[i] = toLua(v)
		L.SetGlobal(v.Name, bound[i])
	}
	return bound
}

// collectChanges compares each variable global against its bound value.
func collectChanges(L *lua.LState, vars []state.Variable, bound []lua.LValue) []VariableChange {
	var changes []VariableChange
	for i, v := range vars {
		if bound[i] == nil {
			continue
		}
		cur := L.GetGlobal(v.Name)
		if cur == bound[i] || !isScalar(cur) {
			continue
		}
		value := formatValue(cur, v.Type)
		if value == v.Value {
			continue
		}
		changes = append(changes, VariableChange{ID: v.ID, Name: v.Name, Value: value})
	}
	return changes
}

func isScalar(v lua.LValue) bool {
	switch v.Type() {
	case lua.LTNumber, lua.LTBool, lua.LTString, lua.LTNil:
		return true
	}
	return false
}
