// Package console is an interactive play loop over one session.
package console

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/cory-johannsen/weave/internal/narrative/events"
	"github.com/cory-johannsen/weave/internal/narrative/flow"
	"github.com/cory-johannsen/weave/internal/narrative/graph"
)

// ErrQuit is returned by Execute when the player asks to leave.
var ErrQuit = errors.New("quit requested")

// defaultLogLines is how many events the log command prints without an argument.
const defaultLogLines = 10

// Console renders a session and reads the player's commands.
type Console struct {
	session *flow.Session
	hub     *events.Hub
	sub     events.Subscriber
	out     io.Writer
	logger  *zap.Logger

	// at is the element last rendered; its outgoing connections are resolved
	// only when the player picks one.
	at      graph.ElementID
	options []string
}

// New creates a Console writing to out. hub may be nil.
//
// Precondition: session, out, and logger must be non-nil.
func New(session *flow.Session, hub *events.Hub, out io.Writer, logger *zap.Logger) *Console {
	c := &Console{session: session, hub: hub, out: out, logger: logger}
	if hub != nil {
		c.sub = hub.Subscribe(0)
	}
	return c
}

// Close releases the console's event subscription.
func (c *Console) Close() {
	if c.hub != nil {
		c.hub.Unsubscribe(c.sub)
	}
}

// Begin renders start, or the project start when start is empty.
func (c *Console) Begin(start graph.ElementID) error {
	el, err := c.startElement(start)
	if err != nil {
		return err
	}
	c.enter(el.ID)
	c.flushEvents()
	return nil
}

// Execute runs one command line.
//
// Postcondition: Returns ErrQuit for quit/exit; command errors are printed
// and nil is returned so the loop continues.
func (c *Console) Execute(line string) error {
	args := ParseArgs(strings.TrimSpace(line))
	if len(args) == 0 {
		return nil
	}
	defer c.flushEvents()

	n, err := strconv.Atoi(args[0])
	if err == nil {
		c.pick(n)
		return nil
	}
	switch args[0] {
	case "vars":
		for _, v := range c.session.Variables() {
			c.printf("  %s (%s) = %s\n", v.Name, v.Type, v.Value)
		}
	case "visits":
		c.printVisits()
	case "set":
		if len(args) != 3 {
			c.printf("usage: set <variable> <value>\n")
			return nil
		}
		v, err := c.session.SetVariable(args[1], args[2])
		if err != nil {
			c.printf("error: %v\n", err)
			return nil
		}
		c.printf("  %s = %s\n", v.Name, v.Value)
	case "lang":
		if len(args) != 2 {
			c.printf("usage: lang <locale>\n")
			return nil
		}
		if err := c.session.SetLocale(args[1]); err != nil {
			c.printf("error: %v\n", err)
			return nil
		}
		c.printf("  locale set to %s\n", args[1])
	case "log":
		n := defaultLogLines
		if len(args) > 1 {
			if n, err = strconv.Atoi(args[1]); err != nil || n < 1 {
				c.printf("usage: log [n]\n")
				return nil
			}
		}
		c.printLog(n)
	case "help":
		c.printf("%s", helpText)
	case "quit", "exit":
		return ErrQuit
	default:
		c.printf("unknown command: %s (try help)\n", args[0])
	}
	return nil
}

// Run reads commands from rl until quit or end of input.
func (c *Console) Run(rl *readline.Instance) error {
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			c.printf("Use 'quit' to leave.\n")
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.Execute(line); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			return err
		}
	}
}

// ParseArgs splits a command line on spaces, keeping double-quoted runs together.
func ParseArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false
	for _, r := range input {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

func (c *Console) startElement(id graph.ElementID) (*graph.Element, error) {
	if id != "" {
		return c.session.Project().Element(id)
	}
	return c.session.Project().Start()
}

// enter renders the element and lists what can follow it.
func (c *Console) enter(id graph.ElementID) {
	c.at, c.options = "", nil
	r, err := c.session.TranspileObject(id)
	if err != nil {
		c.printf("error: %v\n", err)
		if r.Element == nil {
			return
		}
	}
	if r.Title != "" {
		c.printf("\n== %s ==\n", r.Title)
	}
	if r.Text != "" {
		c.printf("%s\n", r.Text)
	}

	c.at = id
	out := c.session.Project().Outgoing(graph.ElementRef(id))
	switch len(out) {
	case 0:
		c.printf("-- the end --\n")
		return
	case 1:
		c.options = []string{c.label(out[0], "Continue")}
	default:
		for i, conn := range out {
			c.options = append(c.options, c.label(conn, fmt.Sprintf("Option %d", i+1)))
		}
	}
	for i, label := range c.options {
		c.printf("  %d) %s\n", i+1, label)
	}
}

func (c *Console) label(conn *graph.Connection, fallback string) string {
	l, err := c.session.TranspileConnection(conn.ID, "")
	if err != nil {
		c.logger.Warn("console: label failed", zap.String("connection", string(conn.ID)), zap.Error(err))
		return fallback
	}
	if l.Text == "" {
		return fallback
	}
	return l.Text
}

// pick resolves the current element against the session state as it is now,
// so variables set since the element rendered steer its branches.
func (c *Console) pick(n int) {
	if n < 1 || n > len(c.options) {
		c.printf("no option %d\n", n)
		return
	}
	o, err := c.session.Resolve(c.at)
	if err == nil && o.Kind == flow.OutcomeChoice {
		o, err = c.session.Choose(o, n-1)
	}
	if err != nil {
		c.logger.Warn("console: resolve failed", zap.String("element", string(c.at)), zap.Error(err))
		c.printf("error: %v\n", err)
		return
	}
	if o.Kind == flow.OutcomeEnd {
		c.at, c.options = "", nil
		c.printf("-- the end --\n")
		return
	}
	if o.BoardSwitched {
		c.printf("\n~~ %s ~~\n", o.Board.Name)
	}
	c.enter(o.Element.ID)
}

func (c *Console) printVisits() {
	visits := c.session.VisitTable()
	ids := make([]string, 0, len(visits))
	for id, n := range visits {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		c.printf("  %s: %d\n", id, visits[id])
	}
}

func (c *Console) flushEvents() {
	if c.hub == nil {
		return
	}
	for _, e := range events.Drain(c.sub) {
		if e.SessionID != c.session.ID() {
			continue
		}
		switch e.Kind {
		case events.KindScriptEvent:
			c.printf("  * %s\n", e.Name)
		case events.KindVariablesChanged:
			for _, v := range e.Changed {
				c.printf("  * %s = %s\n", v.Name, v.Value)
			}
		}
	}
}

// printLog prints the hub's recent events that concern this session.
func (c *Console) printLog(n int) {
	if c.hub == nil {
		c.printf("no event history\n")
		return
	}
	for _, e := range c.hub.Recent(n) {
		if e.SessionID != "" && e.SessionID != c.session.ID() {
			continue
		}
		line := string(e.Kind)
		switch e.Kind {
		case events.KindProjectLoaded:
			if e.Project != nil {
				line += " " + e.Project.Name
			}
		case events.KindScriptEvent:
			line += " " + e.Name
		case events.KindVariablesChanged:
			for _, v := range e.Changed {
				line += fmt.Sprintf(" %s=%s", v.Name, v.Value)
			}
		}
		if e.Source != "" {
			line += " (" + e.Source + ")"
		}
		c.printf("  %s %s\n", e.Time.Format("15:04:05"), line)
	}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

const helpText = `Commands:
  <n>                  pick option n
  vars                 list variables
  visits               list visit counters
  set <var> <value>    set a variable (quote values with spaces)
  lang <locale>        switch locale (e.g. fr, fr-CA)
  log [n]              show the last n events (default 10)
  help                 show this text
  quit                 leave
`
