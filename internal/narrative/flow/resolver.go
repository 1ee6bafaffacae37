package flow

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/weave/internal/narrative/graph"
)

// OutcomeKind discriminates Outcome.
type OutcomeKind int

const (
	// OutcomeElement means flow reached Outcome.Element via Outcome.Connection.
	OutcomeElement OutcomeKind = iota
	// OutcomeChoice means the element has several outgoing connections and
	// the host must pick one of Outcome.Choices.
	OutcomeChoice
	// OutcomeEnd means flow stops: the element has no outgoing connection, or
	// a branch fired nothing and has no default (Outcome.Branch is set).
	OutcomeEnd
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeElement:
		return "element"
	case OutcomeChoice:
		return "choice"
	case OutcomeEnd:
		return "end"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the answer to "what comes next". Jumpers never appear in it:
// flow through a jumper lands on the jumper's target element.
type Outcome struct {
	Kind OutcomeKind
	// Connection is the last connection traversed: the one entering Element,
	// or the one entering the dead-end branch.
	Connection *graph.Connection
	// Element is the next element (OutcomeElement only).
	Element *graph.Element
	// Board is the board flow is on after this step.
	Board *graph.Board
	// BoardSwitched is set when Board differs from the board flow started on.
	BoardSwitched bool
	// Branch is the last branch flow passed through, if any.
	Branch *graph.Branch
	// Choices lists the candidate connections in authored order (OutcomeChoice only).
	Choices []*graph.Connection
}

// Resolve determines what comes after the element with id.
//
// No outgoing connection yields OutcomeEnd; one is followed; several yield
// OutcomeChoice without evaluating anything. Following a connection into a
// branch evaluates the branch's conditions in authored order and takes the
// first that fires. Later conditions are not evaluated. When none fires the
// default connection is taken, and without a default flow ends at the branch.
//
// Postcondition: Returns an UnknownEntity error with no state change when id
// does not exist, an error matching graph.ErrDanglingReference when a
// reference on the path does not resolve, ErrFlowLoop when indirection
// exceeds the hop limit, or a script error from a condition. Visit counts of
// conditions evaluated before a failure stay committed.
func (s *Session) Resolve(id graph.ElementID) (Outcome, error) {
	el, err := s.project.Element(id)
	if err != nil {
		return Outcome{}, err
	}
	board, err := s.project.Board(el.Board)
	if err != nil {
		return Outcome{}, graph.Dangling(graph.ElementRef(el.ID), graph.BoardRef(el.Board))
	}

	out := s.project.Outgoing(graph.ElementRef(id))
	switch len(out) {
	case 0:
		return Outcome{Kind: OutcomeEnd, Board: board}, nil
	case 1:
		return s.follow(out[0], board.ID)
	default:
		choices := make([]*graph.Connection, len(out))
		copy(choices, out)
		return Outcome{Kind: OutcomeChoice, Board: board, Choices: choices}, nil
	}
}

// Follow continues flow along the connection with id.
//
// Postcondition: As Resolve; returns an UnknownEntity error when id does not
// exist.
func (s *Session) Follow(id graph.ConnectionID) (Outcome, error) {
	c, err := s.project.Connection(id)
	if err != nil {
		return Outcome{}, err
	}
	return s.follow(c, c.Board)
}

// Choose follows choice i of a choice outcome.
//
// Postcondition: Returns ErrInvalidChoice when o is not a choice or i is out
// of range.
func (s *Session) Choose(o Outcome, i int) (Outcome, error) {
	if o.Kind != OutcomeChoice || i < 0 || i >= len(o.Choices) {
		return Outcome{}, fmt.Errorf("%w: %d of %d", ErrInvalidChoice, i, len(o.Choices))
	}
	origin := o.Choices[i].Board
	if o.Board != nil {
		origin = o.Board.ID
	}
	return s.follow(o.Choices[i], origin)
}

// follow walks from c through branches and jumpers until it reaches an
// element or a dead end.
func (s *Session) follow(c *graph.Connection, origin graph.BoardID) (Outcome, error) {
	var via *graph.Branch
	for hops := 1; ; hops++ {
		if hops > s.maxHops {
			return Outcome{}, fmt.Errorf("%w: %d hops from connection %q", ErrFlowLoop, s.maxHops, c.ID)
		}
		from := graph.ConnectionRef(c.ID)

		switch c.Target.Kind {
		case graph.KindElement:
			el, err := s.project.Element(graph.ElementID(c.Target.ID))
			if err != nil {
				return Outcome{}, graph.Dangling(from, c.Target)
			}
			return s.arrive(c, el, via, origin)

		case graph.KindJumper:
			j, err := s.project.Jumper(graph.JumperID(c.Target.ID))
			if err != nil {
				return Outcome{}, graph.Dangling(from, c.Target)
			}
			el, err := s.project.Element(j.TargetElement)
			if err != nil || el.Board != j.TargetBoard {
				return Outcome{}, graph.Dangling(graph.JumperRef(j.ID), graph.ElementRef(j.TargetElement))
			}
			s.logger.Debug("flow: jumper followed",
				zap.String("jumper", string(j.ID)),
				zap.String("board", string(j.TargetBoard)),
				zap.String("element", string(el.ID)),
			)
			return s.arrive(c, el, via, origin)

		case graph.KindBranch:
			br, err := s.project.Branch(graph.BranchID(c.Target.ID))
			if err != nil {
				return Outcome{}, graph.Dangling(from, c.Target)
			}
			via = br
			next, err := s.resolveBranch(br)
			if err != nil {
				return Outcome{}, err
			}
			if next == nil {
				board, err := s.project.Board(br.Board)
				if err != nil {
					return Outcome{}, graph.Dangling(graph.BranchRef(br.ID), graph.BoardRef(br.Board))
				}
				s.logger.Debug("flow: branch dead end", zap.String("branch", string(br.ID)))
				return Outcome{
					Kind:          OutcomeEnd,
					Connection:    c,
					Board:         board,
					BoardSwitched: board.ID != origin,
					Branch:        br,
				}, nil
			}
			c = next

		default:
			return Outcome{}, graph.Dangling(from, c.Target)
		}
	}
}

func (s *Session) arrive(c *graph.Connection, el *graph.Element, via *graph.Branch, origin graph.BoardID) (Outcome, error) {
	board, err := s.project.Board(el.Board)
	if err != nil {
		return Outcome{}, graph.Dangling(graph.ElementRef(el.ID), graph.BoardRef(el.Board))
	}
	return Outcome{
		Kind:          OutcomeElement,
		Connection:    c,
		Element:       el,
		Board:         board,
		BoardSwitched: board.ID != origin,
		Branch:        via,
	}, nil
}

// resolveBranch returns the connection br takes, or nil for a dead end.
func (s *Session) resolveBranch(br *graph.Branch) (*graph.Connection, error) {
	from := graph.BranchRef(br.ID)
	for _, opt := range br.Options {
		res, err := s.TranspileCondition(opt.Condition)
		if err != nil {
			if errors.Is(err, graph.ErrUnknownEntity) {
				return nil, graph.Dangling(from, graph.ConditionRef(opt.Condition))
			}
			return nil, err
		}
		if !res.Fired {
			continue
		}
		c, err := s.project.Connection(opt.Connection)
		if err != nil {
			return nil, graph.Dangling(from, graph.ConnectionRef(opt.Connection))
		}
		s.logger.Debug("flow: branch option fired",
			zap.String("branch", string(br.ID)),
			zap.String("condition", string(opt.Condition)),
			zap.String("connection", string(c.ID)),
		)
		return c, nil
	}
	if !br.HasDefault() {
		return nil, nil
	}
	c, err := s.project.Connection(br.Default)
	if err != nil {
		return nil, graph.Dangling(from, graph.ConnectionRef(br.Default))
	}
	return c, nil
}
