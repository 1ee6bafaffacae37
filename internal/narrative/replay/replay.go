// Package replay drives a session through a scripted sequence of choices and
// records what it rendered. Replays are deterministic: the same project and
// script always yield the same transcript.
package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/weave/internal/narrative/flow"
	"github.com/cory-johannsen/weave/internal/narrative/graph"
)

// DefaultMaxSteps bounds a replay when the script does not.
const DefaultMaxSteps = 100

// Script is a replay file.
type Script struct {
	// Start is the element to begin at. Empty uses the project start.
	Start string `yaml:"start"`
	// Choices are the picks made at each choice point, in order.
	Choices []int `yaml:"choices"`
	// MaxSteps bounds the number of rendered elements (0 = DefaultMaxSteps).
	MaxSteps int `yaml:"max_steps"`
}

// Stop describes why a replay ended.
type Stop string

const (
	StopEnd      Stop = "end"
	StopChoice   Stop = "awaiting-choice"
	StopMaxSteps Stop = "max-steps"
)

// Step is one rendered element.
type Step struct {
	Element string   `yaml:"element"`
	Board   string   `yaml:"board"`
	Title   string   `yaml:"title,omitempty"`
	Text    string   `yaml:"text,omitempty"`
	Events  []string `yaml:"events,omitempty"`
	// Choices lists rendered labels when the element is a choice point.
	Choices []string `yaml:"choices,omitempty"`
	// Picked is the index chosen, or -1.
	Picked int `yaml:"picked"`
	// BoardSwitched is set when reaching this element changed board.
	BoardSwitched bool `yaml:"board_switched,omitempty"`
}

// Transcript is the record of a replay.
type Transcript struct {
	Session string            `yaml:"session"`
	Steps   []Step            `yaml:"steps"`
	Stop    Stop              `yaml:"stop"`
	Vars    map[string]string `yaml:"variables,omitempty"`
}

// Parse decodes a replay script. Unknown fields are rejected.
func Parse(data []byte) (Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Script{}, fmt.Errorf("parsing replay script: %w", err)
	}
	if s.MaxSteps < 0 {
		return Script{}, fmt.Errorf("parsing replay script: max_steps must be >= 0, got %d", s.MaxSteps)
	}
	for i, c := range s.Choices {
		if c < 0 {
			return Script{}, fmt.Errorf("parsing replay script: choice #%d must be >= 0, got %d", i, c)
		}
	}
	return s, nil
}

// Load reads and parses the replay script at path.
func Load(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("reading replay script %q: %w", path, err)
	}
	return Parse(data)
}

// Run plays script on s.
//
// Postcondition: Returns the transcript so far together with any error from
// the session. An out-of-range choice fails with flow.ErrInvalidChoice.
func Run(s *flow.Session, script Script) (t Transcript, err error) {
	t.Session = s.ID()
	defer func() { t.Vars = variables(s) }()

	el, err := start(s, script)
	if err != nil {
		return t, err
	}
	maxSteps := script.MaxSteps
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	choices := script.Choices
	switched := false

	for {
		if len(t.Steps) == maxSteps {
			t.Stop = StopMaxSteps
			return t, nil
		}
		r, err := s.TranspileObject(el.ID)
		if err != nil {
			return t, err
		}
		step := Step{
			Element:       string(el.ID),
			Board:         string(r.Board.ID),
			Title:         r.Title,
			Text:          r.Text,
			Events:        r.Events,
			Picked:        -1,
			BoardSwitched: switched,
		}

		o, err := s.Resolve(el.ID)
		if err != nil {
			t.Steps = append(t.Steps, step)
			return t, err
		}
		if o.Kind == flow.OutcomeChoice {
			for _, c := range o.Choices {
				l, err := s.TranspileConnection(c.ID, "")
				if err != nil {
					t.Steps = append(t.Steps, step)
					return t, err
				}
				step.Choices = append(step.Choices, l.Text)
			}
			if len(choices) == 0 {
				t.Steps = append(t.Steps, step)
				t.Stop = StopChoice
				return t, nil
			}
			step.Picked = choices[0]
			choices = choices[1:]
			o, err = s.Choose(o, step.Picked)
			if err != nil {
				t.Steps = append(t.Steps, step)
				return t, err
			}
		}
		t.Steps = append(t.Steps, step)

		if o.Kind == flow.OutcomeEnd {
			t.Stop = StopEnd
			return t, nil
		}
		el = o.Element
		switched = o.BoardSwitched
	}
}

// Write renders t as YAML.
func Write(w io.Writer, t Transcript) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	return enc.Close()
}

func start(s *flow.Session, script Script) (*graph.Element, error) {
	if script.Start != "" {
		return s.Project().Element(graph.ElementID(script.Start))
	}
	return s.Project().Start()
}

func variables(s *flow.Session) map[string]string {
	vars := s.Variables()
	if len(vars) == 0 {
		return nil
	}
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		out[v.Name] = v.Value
	}
	return out
}
