// Package flow walks a loaded narrative project. An Engine loads projects and
// opens Sessions; a Session owns the variable and visit state of one
// playthrough and answers what comes next.
package flow

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/weave/internal/narrative/events"
	"github.com/cory-johannsen/weave/internal/narrative/graph"
	"github.com/cory-johannsen/weave/internal/narrative/localize"
	"github.com/cory-johannsen/weave/internal/narrative/state"
	"github.com/cory-johannsen/weave/internal/scripting"
)

// DefaultMaxHops bounds branch and jumper indirection in a single resolution
// when Options.MaxHops is 0.
const DefaultMaxHops = 64

var (
	// ErrFlowLoop is returned when resolution passes through more than
	// MaxHops connections without reaching an element or a dead end.
	ErrFlowLoop = errors.New("flow loop: hop limit exceeded")
	// ErrInvalidChoice is returned when a choice index does not name one of
	// the outcome's choices.
	ErrInvalidChoice = errors.New("invalid choice")
)

// Evaluator evaluates one script against snapshots of session state.
// *scripting.Runner is the production implementation.
type Evaluator interface {
	Evaluate(req scripting.Request) (scripting.Output, error)
}

// Options configures sessions opened by an Engine.
type Options struct {
	// Locale is the call-site translation policy. An empty Default is filled
	// from the project's default locale.
	Locale localize.Policy
	// StripMarkup strips markup from rendered text and loaded display fields.
	StripMarkup bool
	// MaxHops bounds indirection per resolution (0 = DefaultMaxHops).
	MaxHops int
}

// Engine loads projects and opens sessions over them.
type Engine struct {
	runner Evaluator
	hub    *events.Hub
	opts   Options
	logger *zap.Logger
}

// NewEngine creates an Engine.
//
// Precondition: runner and logger must be non-nil. hub may be nil, in which
// case events are not published.
// Postcondition: Returns a non-nil Engine.
func NewEngine(runner Evaluator, hub *events.Hub, opts Options, logger *zap.Logger) *Engine {
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	return &Engine{runner: runner, hub: hub, opts: opts, logger: logger}
}

// Load parses doc into a project and publishes a project-loaded event.
//
// Postcondition: Returns the project, or an error matching
// graph.ErrMalformedProject with nothing published.
func (e *Engine) Load(doc []byte) (*graph.Project, error) {
	start := time.Now()
	p, err := graph.Load(doc, graph.LoadOptions{StripMarkup: e.opts.StripMarkup})
	if err != nil {
		e.logger.Error("flow: project load failed", zap.Error(err))
		return nil, err
	}
	e.logger.Info("flow: project loaded",
		zap.String("project", p.Name),
		zap.Int("boards", len(p.Boards)),
		zap.Int("elements", p.ElementCount()),
		zap.Int("connections", p.ConnectionCount()),
		zap.Duration("duration", time.Since(start)),
	)
	publish(e.hub, events.Event{Kind: events.KindProjectLoaded, Time: time.Now(), Project: p})
	return p, nil
}

// NewSession opens a playthrough of p with fresh state seeded from the
// project's authored defaults.
//
// Precondition: p must be non-nil.
// Postcondition: The returned session shares p read-only and owns its state.
func (e *Engine) NewSession(p *graph.Project) *Session {
	policy := e.opts.Locale
	if policy.Default == "" {
		policy.Default = p.DefaultLocale()
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		project: p,
		runner:  e.runner,
		hub:     e.hub,
		logger:  e.logger.With(zap.String("session", id)),
		vars:    state.NewVariables(p.Variables),
		visits:  state.NewVisits(p.Visits),
		locale:  policy,
		strip:   e.opts.StripMarkup,
		maxHops: e.opts.MaxHops,
	}
}

func publish(hub *events.Hub, e events.Event) {
	if hub != nil {
		hub.Publish(e)
	}
}
