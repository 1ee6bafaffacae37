package flow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/weave/internal/narrative/flow"
	"github.com/cory-johannsen/weave/internal/narrative/graph"
	"github.com/cory-johannsen/weave/internal/scripting"
)

func TestResolve_BranchFirstMatch(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, branchDoc([3]string{"false", "true", "true"}, "cd"))

	o, err := s.Resolve("e")
	require.NoError(t, err)
	assert.Equal(t, flow.OutcomeElement, o.Kind)
	assert.Equal(t, graph.ConnectionID("c2"), o.Connection.ID)
	assert.Equal(t, graph.ElementID("x2"), o.Element.ID)
	require.NotNil(t, o.Branch)
	assert.Equal(t, graph.BranchID("br"), o.Branch.ID)

	assert.Equal(t, uint64(1), s.Visits("k1"))
	assert.Equal(t, uint64(1), s.Visits("k2"))
	assert.Equal(t, uint64(0), s.Visits("k3"), "conditions after the first match are never evaluated")
}

func TestResolve_DefaultFallback(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, branchDoc([3]string{"false", "false", "nil"}, "cd"))

	o, err := s.Resolve("e")
	require.NoError(t, err)
	assert.Equal(t, flow.OutcomeElement, o.Kind)
	assert.Equal(t, graph.ConnectionID("cd"), o.Connection.ID)
	assert.Equal(t, graph.ElementID("xd"), o.Element.ID)
	for _, k := range []string{"k1", "k2", "k3"} {
		assert.Equal(t, uint64(1), s.Visits(k), k)
	}
}

func TestResolve_DeadEnd(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, branchDoc([3]string{"false", "false", "false"}, ""))

	o, err := s.Resolve("e")
	require.NoError(t, err, "an authored dead end is not an error")
	assert.Equal(t, flow.OutcomeEnd, o.Kind)
	assert.Nil(t, o.Element)
	require.NotNil(t, o.Branch)
	assert.Equal(t, graph.BranchID("br"), o.Branch.ID)
	assert.Equal(t, graph.ConnectionID("c0"), o.Connection.ID)
}

func TestResolve_NoOutgoingIsEnd(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, helloDoc)

	o, err := s.Resolve("e2")
	require.NoError(t, err)
	assert.Equal(t, flow.OutcomeEnd, o.Kind)
	assert.Nil(t, o.Branch)
	assert.Equal(t, graph.BoardID("b"), o.Board.ID)
}

func TestResolve_StoryBranch(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, storyDoc(t))

	o, err := s.Resolve("e2")
	require.NoError(t, err)
	assert.Equal(t, graph.ElementID("e5"), o.Element.ID, "nothing fires, default taken")

	_, err = s.SetVariable("has_key", "true")
	require.NoError(t, err)
	o, err = s.Resolve("e2")
	require.NoError(t, err)
	assert.Equal(t, graph.ElementID("e4"), o.Element.ID)

	_, err = s.SetVariable("gold", "20")
	require.NoError(t, err)
	o, err = s.Resolve("e2")
	require.NoError(t, err)
	assert.Equal(t, graph.ElementID("e3"), o.Element.ID)
	assert.Equal(t, uint64(3), s.Visits("k1"))
	assert.Equal(t, uint64(2), s.Visits("k2"))
}

func TestResolve_ChoiceAndJumper(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, storyDoc(t))

	o, err := s.Resolve("e5")
	require.NoError(t, err)
	require.Equal(t, flow.OutcomeChoice, o.Kind)
	require.Len(t, o.Choices, 2)
	assert.Equal(t, graph.ConnectionID("c6"), o.Choices[0].ID)
	assert.Equal(t, graph.ConnectionID("c7"), o.Choices[1].ID)

	back, err := s.Choose(o, 0)
	require.NoError(t, err)
	assert.Equal(t, graph.ElementID("e1"), back.Element.ID)
	assert.False(t, back.BoardSwitched)

	jumped, err := s.Choose(o, 1)
	require.NoError(t, err)
	assert.Equal(t, flow.OutcomeElement, jumped.Kind)
	assert.Equal(t, graph.ElementID("e10"), jumped.Element.ID)
	assert.Equal(t, graph.BoardID("b2"), jumped.Board.ID)
	assert.True(t, jumped.BoardSwitched)
	assert.Equal(t, graph.ConnectionID("c7"), jumped.Connection.ID)

	followed, err := s.Follow("c7")
	require.NoError(t, err)
	assert.Equal(t, jumped.Element, followed.Element)
	assert.True(t, followed.BoardSwitched)

	_, err = s.Choose(o, 2)
	assert.ErrorIs(t, err, flow.ErrInvalidChoice)
	_, err = s.Choose(jumped, 0)
	assert.ErrorIs(t, err, flow.ErrInvalidChoice)
}

func TestResolve_DanglingReferences(t *testing.T) {
	cases := map[string]string{
		"connection target": `{"boards":[{"id":"b","elements":[{"id":"e"}],
			"connections":[{"id":"c","source":"e","target":"ghost","targetType":"element"}]}]}`,
		"jumper element": `{"boards":[{"id":"b","elements":[{"id":"e"}],
			"connections":[{"id":"c","source":"e","target":"j","targetType":"jumper"}],
			"jumpers":[{"id":"j","board":"b","element":"ghost"}]}]}`,
		"branch condition": `{"boards":[{"id":"b","elements":[{"id":"e"},{"id":"x"}],
			"connections":[{"id":"c","source":"e","target":"br","targetType":"branch"},
				{"id":"cx","source":"br","sourceType":"branch","target":"x","targetType":"element"}],
			"branches":[{"id":"br","options":[{"connection":"cx","condition":"ghost"}]}]}]}`,
		"branch default": `{"boards":[{"id":"b","elements":[{"id":"e"}],
			"connections":[{"id":"c","source":"e","target":"br","targetType":"branch"}],
			"branches":[{"id":"br","options":[],"default":"ghost"}]}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, flow.Options{})
			p, s := h.load(t, doc)
			assert.NotEmpty(t, p.DanglingReferences())

			_, err := s.Resolve("e")
			assert.ErrorIs(t, err, graph.ErrDanglingReference)
			assert.ErrorIs(t, err, graph.ErrUnknownEntity)
		})
	}
}

func TestResolve_ConditionErrorPropagates(t *testing.T) {
	h := newHarness(t, flow.Options{})
	_, s := h.load(t, branchDoc([3]string{"false", "error('boom')", "true"}, "cd"))

	_, err := s.Resolve("e")
	assert.ErrorIs(t, err, scripting.ErrScriptEvaluation)
	assert.Equal(t, uint64(1), s.Visits("k1"))
	assert.Equal(t, uint64(1), s.Visits("k2"))
	assert.Equal(t, uint64(0), s.Visits("k3"))
}

func TestResolve_HopLimit(t *testing.T) {
	doc := `{"boards":[{"id":"b","elements":[{"id":"e"}],
		"connections":[
			{"id":"c0","source":"e","target":"br1","targetType":"branch"},
			{"id":"ca","source":"br1","sourceType":"branch","target":"br2","targetType":"branch"},
			{"id":"cb","source":"br2","sourceType":"branch","target":"br1","targetType":"branch"}],
		"branches":[
			{"id":"br1","options":[],"default":"ca"},
			{"id":"br2","options":[],"default":"cb"}]}]}`
	h := newHarness(t, flow.Options{MaxHops: 8})
	_, s := h.load(t, doc)

	_, err := s.Resolve("e")
	assert.ErrorIs(t, err, flow.ErrFlowLoop)
}

func TestProperty_FirstFiredWins(t *testing.T) {
	h := newHarness(t, flow.Options{})
	rapid.Check(t, func(t *rapid.T) {
		var conds [3]string
		var fired [3]bool
		for i := range conds {
			fired[i] = rapid.Bool().Draw(t, "fired")
			conds[i] = "false"
			if fired[i] {
				conds[i] = "true"
			}
		}
		p, err := h.engine.Load([]byte(branchDoc(conds, "cd")))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		s := h.engine.NewSession(p)
		o, err := s.Resolve("e")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}

		want := graph.ElementID("xd")
		last := 2
		for i, f := range fired {
			if f {
				want = graph.ElementID([]string{"x1", "x2", "x3"}[i])
				last = i
				break
			}
		}
		if o.Element.ID != want {
			t.Fatalf("expected %s, got %s", want, o.Element.ID)
		}
		for i, k := range []string{"k1", "k2", "k3"} {
			var expect uint64
			if i <= last {
				expect = 1
			}
			if got := s.Visits(k); got != expect {
				t.Fatalf("%s: expected %d visits, got %d", k, expect, got)
			}
		}
	})
}
