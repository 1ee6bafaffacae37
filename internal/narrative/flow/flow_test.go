package flow_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/weave/internal/narrative/events"
	"github.com/cory-johannsen/weave/internal/narrative/flow"
	"github.com/cory-johannsen/weave/internal/narrative/graph"
	"github.com/cory-johannsen/weave/internal/scripting"
)

type harness struct {
	engine *flow.Engine
	hub    *events.Hub
	logs   *observer.ObservedLogs
}

func newHarness(t *testing.T, opts flow.Options) *harness {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	hub := events.NewHub(64, logger)
	return &harness{
		engine: flow.NewEngine(scripting.NewRunner(0, logger), hub, opts, logger),
		hub:    hub,
		logs:   logs,
	}
}

func (h *harness) load(t *testing.T, doc string) (*graph.Project, *flow.Session) {
	t.Helper()
	p, err := h.engine.Load([]byte(doc))
	require.NoError(t, err)
	return p, h.engine.NewSession(p)
}

func storyDoc(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../graph/testdata/story.json")
	require.NoError(t, err)
	return string(data)
}

// branchDoc builds a board with element e feeding branch br whose options
// (c1,k1), (c2,k2), (c3,k3) lead to x1..x3. conds are the three condition
// scripts; def is the default connection id or "".
func branchDoc(conds [3]string, def string) string {
	return `{"boards":[{"id":"b","elements":[
		{"id":"e","content":"start"},{"id":"x1"},{"id":"x2"},{"id":"x3"},{"id":"xd"}],
	"connections":[
		{"id":"c0","source":"e","target":"br","targetType":"branch"},
		{"id":"c1","source":"br","sourceType":"branch","target":"x1","targetType":"element"},
		{"id":"c2","source":"br","sourceType":"branch","target":"x2","targetType":"element"},
		{"id":"c3","source":"br","sourceType":"branch","target":"x3","targetType":"element"},
		{"id":"cd","source":"br","sourceType":"branch","target":"xd","targetType":"element"}],
	"branches":[{"id":"br","element":"e","options":[
		{"connection":"c1","condition":"k1"},
		{"connection":"c2","condition":"k2"},
		{"connection":"c3","condition":"k3"}],"default":"` + def + `"}],
	"conditions":[
		{"id":"k1","script":"` + conds[0] + `"},
		{"id":"k2","script":"` + conds[1] + `"},
		{"id":"k3","script":"` + conds[2] + `"}]}]}`
}
