package flow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/weave/internal/narrative/events"
	"github.com/cory-johannsen/weave/internal/narrative/flow"
	"github.com/cory-johannsen/weave/internal/narrative/graph"
	"github.com/cory-johannsen/weave/internal/narrative/localize"
	"github.com/cory-johannsen/weave/internal/narrative/state"
	"github.com/cory-johannsen/weave/internal/scripting"
)

const helloDoc = `{"boards":[{"id":"b","elements":[
	{"id":"e1","content":"Hello"},{"id":"e2"}],
	"connections":[{"id":"c1","source":"e1","target":"e2","targetType":"element"}]}]}`

func TestScenario_HelloThenResolve(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, helloDoc)

	r, err := s.TranspileObject("e1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", r.Text)
	assert.Equal(t, graph.BoardID("b"), r.Board.ID)
	assert.Equal(t, uint64(1), s.Visits("e1"))

	o, err := s.Resolve("e1")
	require.NoError(t, err)
	assert.Equal(t, flow.OutcomeElement, o.Kind)
	assert.Equal(t, graph.ConnectionID("c1"), o.Connection.ID)
	assert.Equal(t, graph.ElementID("e2"), o.Element.ID)
	assert.False(t, o.BoardSwitched)
	assert.Nil(t, o.Branch)
}

func TestEngine_LoadPublishesProjectLoaded(t *testing.T) {
	h := newHarness(t, flow.Options{})
	sub := h.hub.Subscribe(0)
	defer h.hub.Unsubscribe(sub)

	p, err := h.engine.Load([]byte(storyDoc(t)))
	require.NoError(t, err)
	got := events.Drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, events.KindProjectLoaded, got[0].Kind)
	assert.Same(t, p, got[0].Project)
	assert.Equal(t, "The Gate", got[0].Project.Name)
	assert.Equal(t, 1, h.logs.FilterMessage("flow: project loaded").Len())

	_, err = h.engine.Load([]byte(`{"boards":[{"name":"no id"}]}`))
	assert.ErrorIs(t, err, graph.ErrMalformedProject)
	assert.Empty(t, events.Drain(sub))
}

func TestTranspileObject_ScriptChangesAndEvents(t *testing.T) {
	h := newHarness(t, flow.Options{StripMarkup: true})
	_, s := h.load(t, storyDoc(t))
	sub := h.hub.Subscribe(0)
	defer h.hub.Unsubscribe(sub)

	r, err := s.TranspileObject("e2")
	require.NoError(t, err)
	assert.Equal(t, "The gate creaks.", r.Text)
	assert.Equal(t, "Gate", r.Title)
	assert.Equal(t, []string{"creak"}, r.Events)

	gold, ok := s.Variable("gold")
	require.True(t, ok)
	assert.Equal(t, "5", gold.Value)

	got := events.Drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, events.KindVariablesChanged, got[0].Kind)
	require.Len(t, got[0].Changed, 1)
	assert.Equal(t, "v_gold", got[0].Changed[0].ID)
	assert.Equal(t, "5", got[0].Changed[0].Value)
	assert.Equal(t, s.Variables(), got[0].Variables)
	assert.Equal(t, "e2", got[0].Source)
	assert.Equal(t, s.ID(), got[0].SessionID)
	assert.Equal(t, events.KindScriptEvent, got[1].Kind)
	assert.Equal(t, "creak", got[1].Name)
}

func TestTranspileObject_VisitAdvancesOnScriptFailure(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, `{"boards":[{"id":"b","elements":[{"id":"bad","content":"x<code>error('boom')</code>"}]}]}`)

	r, err := s.TranspileObject("bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, scripting.ErrScriptEvaluation)
	assert.Equal(t, graph.ElementID("bad"), r.Element.ID)
	assert.Empty(t, r.Text)
	assert.Equal(t, uint64(1), s.Visits("bad"))
	assert.Equal(t, 1, h.logs.FilterMessage("flow: script evaluation failed").Len())
}

func TestTranspileConnection(t *testing.T) {
	h := newHarness(t, flow.Options{StripMarkup: true})
	_, s := h.load(t, storyDoc(t))
	before := s.VisitTable()

	l, err := s.TranspileConnection("c7", "")
	require.NoError(t, err)
	assert.Equal(t, "Leave with 0 gold", l.Text)
	assert.Equal(t, graph.BoardID("b1"), l.Board.ID)

	l, err = s.TranspileConnection("c7", "Go <code>show(1 + 1)</code>")
	require.NoError(t, err)
	assert.Equal(t, "Go 2", l.Text)

	l, err = s.TranspileConnection("c1", "")
	require.NoError(t, err)
	assert.Empty(t, l.Text)

	assert.Equal(t, before, s.VisitTable(), "connections are never visited")
}

func TestTranspileCondition(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, storyDoc(t))

	res, err := s.TranspileCondition("k1")
	require.NoError(t, err)
	assert.False(t, res.Fired)
	assert.Equal(t, uint64(1), s.Visits("k1"))

	_, err = s.SetVariable("gold", "11")
	require.NoError(t, err)
	res, err = s.TranspileCondition("k1")
	require.NoError(t, err)
	assert.True(t, res.Fired)
	assert.Equal(t, uint64(2), s.Visits("k1"))
}

func TestUnknownID_LeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, storyDoc(t))
	visits := s.VisitTable()
	vars := s.Variables()

	ops := map[string]func() error{
		"TranspileObject":     func() error { _, err := s.TranspileObject("zzz"); return err },
		"TranspileConnection": func() error { _, err := s.TranspileConnection("zzz", ""); return err },
		"TranspileCondition":  func() error { _, err := s.TranspileCondition("zzz"); return err },
		"Resolve":             func() error { _, err := s.Resolve("zzz"); return err },
		"Follow":              func() error { _, err := s.Follow("zzz"); return err },
		"GetConnectionsData":  func() error { _, err := s.GetConnectionsData("b1", "zzz"); return err },
		"GetIsTargetBranch":   func() error { _, _, err := s.GetIsTargetBranch("b1", "zzz"); return err },
		"GetIsTargetBranch board": func() error {
			_, _, err := s.GetIsTargetBranch("zzz", "c1")
			return err
		},
		"SetVariable": func() error { _, err := s.SetVariable("zzz", "1"); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), graph.ErrUnknownEntity)
			assert.Equal(t, visits, s.VisitTable())
			assert.Equal(t, vars, s.Variables())
		})
	}
}

func TestGetIsTargetBranch(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, storyDoc(t))

	ok, br, err := s.GetIsTargetBranch("b1", "c3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, graph.BranchID("br1"), br.ID)

	ok, br, err = s.GetIsTargetBranch("b1", "c2")
	require.NoError(t, err)
	assert.False(t, ok, "c2 enters a branch but its source is an element")
	assert.Nil(t, br)

	ok, _, err = s.GetIsTargetBranch("b2", "c3")
	require.NoError(t, err)
	assert.False(t, ok, "br1 is not recorded on b2")
}

func TestGetConnectionsData(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, storyDoc(t))

	c, err := s.GetConnectionsData("b1", "c6")
	require.NoError(t, err)
	assert.Equal(t, "Go back", c.Label)

	_, err = s.GetConnectionsData("b2", "c6")
	var ue *graph.UnknownEntityError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, graph.KindConnection, ue.Kind)
}

func TestSetVariable(t *testing.T) {
	h := newHarness(t, flow.Options{})
	p, s := h.load(t, storyDoc(t))
	sub := h.hub.Subscribe(0)
	defer h.hub.Unsubscribe(sub)

	v, err := s.SetVariable("v_key", "true")
	require.NoError(t, err)
	assert.Equal(t, "has_key", v.Name)
	assert.Equal(t, "false", p.Variables[1].Value, "authored defaults are never written")

	got := events.Drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, events.KindVariablesChanged, got[0].Kind)
	assert.Empty(t, got[0].Source)
	assert.Same(t, p, got[0].Project)
	assert.Equal(t, []state.Variable{v}, got[0].Changed)
	require.Len(t, got[0].Variables, 2, "the whole table is published")
	assert.Equal(t, "v_gold", got[0].Variables[0].ID)
	assert.Equal(t, "0", got[0].Variables[0].Value)
	assert.Equal(t, v, got[0].Variables[1])

	_, err = s.SetVariable("nope", "1")
	var ue *graph.UnknownEntityError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, graph.KindVariable, ue.Kind)
}

func TestSessions_AreIsolated(t *testing.T) {
	h := newHarness(t, flow.Options{})
	p, s1 := h.load(t, storyDoc(t))
	s2 := h.engine.NewSession(p)
	assert.NotEqual(t, s1.ID(), s2.ID())

	_, err := s1.TranspileObject("e2")
	require.NoError(t, err)
	gold, _ := s2.Variable("gold")
	assert.Equal(t, "0", gold.Value)
	assert.Zero(t, s2.Visits("e2"))
	assert.Zero(t, p.Visits["e2"])
}

const localeDoc = `{"locales":[{"iso":"en","base":true},{"iso":"fr"}],
	"boards":[{"id":"b","elements":[{"id":"e","title":"Authored title","content":"Authored",
	"translations":{"content":{"en":"Hello","fr":"Bonjour"},"title":{"fr":"Titre"}}}]}]}`

func TestLocale_Fallback(t *testing.T) {
	cases := []struct {
		name   string
		policy localize.Policy
		text   string
		title  string
	}{
		{"disabled", localize.Policy{Locale: "fr"}, "Authored", "Authored title"},
		{"exact", localize.Policy{Enabled: true, Locale: "fr"}, "Bonjour", "Titre"},
		{"parent tag", localize.Policy{Enabled: true, Locale: "fr-CA"}, "Bonjour", "Titre"},
		{"fallback to default", localize.Policy{Enabled: true, Locale: "de", Fallback: true}, "Hello", "Authored title"},
		{"miss without fallback", localize.Policy{Enabled: true, Locale: "de"}, "Authored", "Authored title"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, flow.Options{Locale: tc.policy})
			_, s := h.load(t, localeDoc)
			assert.Equal(t, "en", s.Locale().Default)
			r, err := s.TranspileObject("e")
			require.NoError(t, err)
			assert.Equal(t, tc.text, r.Text)
			assert.Equal(t, tc.title, r.Title)
		})
	}
}

func TestSetLocale(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, localeDoc)

	require.NoError(t, s.SetLocale("fr"))
	r, err := s.TranspileObject("e")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", r.Text)

	assert.Error(t, s.SetLocale("not a locale!"))
	assert.Equal(t, "fr", s.Locale().Locale)
}

func TestProperty_VisitMonotonicity(t *testing.T) {
	h := newHarness(t, flow.Options{})
	p, err := h.engine.Load([]byte(helloDoc))
	require.NoError(t, err)
	rapid.Check(t, func(t *rapid.T) {
		s := h.engine.NewSession(p)
		n := rapid.IntRange(0, 20).Draw(t, "n")
		for i := 0; i < n; i++ {
			if _, err := s.TranspileObject("e1"); err != nil {
				t.Fatalf("transpile: %v", err)
			}
			if _, err := s.TranspileObject("zzz"); err == nil {
				t.Fatalf("expected unknown entity error")
			}
		}
		if got := s.Visits("e1"); got != uint64(n) {
			t.Fatalf("expected %d visits, got %d", n, got)
		}
		if got := s.Visits("e2"); got != 0 {
			t.Fatalf("expected e2 unvisited, got %d", got)
		}
	})
}
