package scripting_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/weave/internal/narrative/state"
	"github.com/cory-johannsen/weave/internal/scripting"
)

func newTestRunner(t *testing.T) (*scripting.Runner, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return scripting.NewRunner(0, zap.New(core)), logs
}

func storyVars() []state.Variable {
	return []state.Variable{
		{ID: "v_gold", Name: "gold", Type: "integer", Value: "0"},
		{ID: "v_key", Name: "has_key", Type: "boolean", Value: "false"},
		{ID: "v_who", Name: "who", Type: "string", Value: "stranger"},
	}
}

func TestEvaluate_PlainText(t *testing.T) {
	r, _ := newTestRunner(t)
	out, err := r.Evaluate(scripting.Request{Script: "<p>Hello</p>", ContextID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello</p>", out.Text)
	assert.Empty(t, out.Events)
	assert.Empty(t, out.Changes)
	assert.False(t, out.Fired)
}

func TestEvaluate_CodeBlockChangesVariables(t *testing.T) {
	r, _ := newTestRunner(t)
	vars := storyVars()
	out, err := r.Evaluate(scripting.Request{
		Script:    "<p>The gate creaks.</p><pre><code>gold = gold + 5\nemit(\"creak\")</code></pre>",
		ContextID: "e2",
		Variables: vars,
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>The gate creaks.</p>", out.Text)
	assert.Equal(t, []string{"creak"}, out.Events)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, scripting.VariableChange{ID: "v_gold", Name: "gold", Value: "5"}, out.Changes[0])
	assert.Equal(t, "0", vars[0].Value, "request snapshot must not change")
}

func TestEvaluate_ShowInsertsAtPosition(t *testing.T) {
	r, _ := newTestRunner(t)
	out, err := r.Evaluate(scripting.Request{
		Script:    "Hi <code>show(who)</code>, you have <code>show(gold)</code> gold.",
		Variables: storyVars(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi stranger, you have 0 gold.", out.Text)
}

func TestEvaluate_EscapedCode(t *testing.T) {
	r, _ := newTestRunner(t)
	out, err := r.Evaluate(scripting.Request{
		Script:    "<pre><code>if gold &lt; 1 then<br>who = &quot;pauper&quot;<br>end</code></pre>",
		Variables: storyVars(),
	})
	require.NoError(t, err)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, "v_who", out.Changes[0].ID)
	assert.Equal(t, "pauper", out.Changes[0].Value)
}

func TestEvaluate_Visits(t *testing.T) {
	r, _ := newTestRunner(t)
	visits := map[string]uint64{"e1": 3, "e2": 1}
	out, err := r.Evaluate(scripting.Request{
		Script:    `<code>show(visits(), "/", visits("e2"), "/", visits("nope"))</code>`,
		ContextID: "e1",
		Visits:    visits,
	})
	require.NoError(t, err)
	assert.Equal(t, "3/1/0", out.Text)
}

func TestEvaluate_Condition(t *testing.T) {
	r, _ := newTestRunner(t)
	cases := []struct {
		name   string
		script string
		fired  bool
	}{
		{"expression false", "gold > 10", false},
		{"expression true", "gold == 0", true},
		{"boolean variable", "has_key", false},
		{"negated", "not has_key", true},
		{"code block", "<pre><code>gold &gt;= 0</code></pre>", true},
		{"chunk with return", "local g = gold\nreturn g < 1", true},
		{"empty", "   ", false},
		{"nil result", "nil", false},
		{"visits", "visits() == 0", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := r.Evaluate(scripting.Request{
				Mode:      scripting.ModeCondition,
				Script:    tc.script,
				ContextID: "k1",
				Variables: storyVars(),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.fired, out.Fired)
			assert.Empty(t, out.Text)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	r, logs := newTestRunner(t)
	cases := []struct {
		name string
		req  scripting.Request
	}{
		{"syntax", scripting.Request{Script: "<code>gold = = 1</code>", ContextID: "e1"}},
		{"runtime", scripting.Request{Script: "<code>error('boom')</code>", ContextID: "e1"}},
		{"condition syntax", scripting.Request{Mode: scripting.ModeCondition, Script: "gold >", ContextID: "k1"}},
		{"runaway", scripting.Request{Script: "<code>while true do end</code>", ContextID: "e1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Evaluate(tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, scripting.ErrScriptEvaluation))
			var se *scripting.ScriptError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tc.req.ContextID, se.ContextID)
			assert.Equal(t, tc.req.Script, se.Script)
		})
	}
	assert.Equal(t, len(cases), logs.FilterMessage("scripting: evaluation failed").Len())
}

func TestEvaluate_EngineLog(t *testing.T) {
	r, logs := newTestRunner(t)
	_, err := r.Evaluate(scripting.Request{Script: `<code>engine.log.info("opened")</code>`, ContextID: "e2"})
	require.NoError(t, err)
	entries := logs.FilterMessage("opened").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "e2", entries[0].ContextMap()["context"])
}

func TestEvaluate_NoSandboxEscape(t *testing.T) {
	r, _ := newTestRunner(t)
	_, err := r.Evaluate(scripting.Request{Script: `<code>os.exit(1)</code>`})
	assert.ErrorIs(t, err, scripting.ErrScriptEvaluation)
}

func TestEvaluate_IntegerOutOfRangeKeepsMagnitude(t *testing.T) {
	r, _ := newTestRunner(t)
	out, err := r.Evaluate(scripting.Request{
		Script:    "<code>n = 1e20</code>",
		Variables: []state.Variable{{ID: "v", Name: "n", Type: "integer", Value: "0"}},
	})
	require.NoError(t, err)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, "1e+20", out.Changes[0].Value)
}

func TestReserved(t *testing.T) {
	for _, name := range []string{"visits", "emit", "show", "engine", "math", "string", "table", "tostring", "_G", "end"} {
		assert.True(t, scripting.Reserved(name), name)
	}
	for _, name := range []string{"gold", "has_key", "shown", "Math"} {
		assert.False(t, scripting.Reserved(name), name)
	}
}

func TestEvaluate_ReservedVariableNamesDoNotShadowGlobals(t *testing.T) {
	r, _ := newTestRunner(t)
	vars := []state.Variable{
		{ID: "v_math", Name: "math", Type: "integer", Value: "3"},
		{ID: "v_show", Name: "show", Type: "integer", Value: "3"},
	}
	out, err := r.Evaluate(scripting.Request{Mode: scripting.ModeCondition, Script: "math.floor(2.5) == 2", Variables: vars})
	require.NoError(t, err)
	assert.True(t, out.Fired)

	out, err = r.Evaluate(scripting.Request{Script: `<code>show("ok")</code>`, Variables: vars})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
	assert.Empty(t, out.Changes)
}

func TestProperty_IntegerAssignmentRoundTrips(t *testing.T) {
	r, _ := newTestRunner(t)
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.IntRange(-1000, 1000).Draw(t, "start")
		delta := rapid.IntRange(-1000, 1000).Draw(t, "delta")
		vars := []state.Variable{{ID: "v", Name: "n", Type: "integer", Value: fmt.Sprint(start)}}
		out, err := r.Evaluate(scripting.Request{
			Script:    fmt.Sprintf("<code>n = n + %d</code>", delta),
			Variables: vars,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if delta == 0 {
			if len(out.Changes) != 0 {
				t.Fatalf("expected no changes, got %v", out.Changes)
			}
			return
		}
		if len(out.Changes) != 1 || out.Changes[0].Value != fmt.Sprint(start+delta) {
			t.Fatalf("expected n=%d, got %v", start+delta, out.Changes)
		}
	})
}
