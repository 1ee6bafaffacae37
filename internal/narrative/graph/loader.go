package graph

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/cory-johannsen/weave/internal/narrative/localize"
	"github.com/cory-johannsen/weave/internal/narrative/markup"
	"github.com/cory-johannsen/weave/internal/narrative/state"
	"github.com/cory-johannsen/weave/internal/scripting"
)

// LoadOptions tunes how display fields are read.
type LoadOptions struct {
	// StripMarkup strips markup from display-only fields: board names, element
	// titles, and title translations. Scripts are never stripped.
	StripMarkup bool
}

// LoadFromFile reads and loads a project document.
//
// Precondition: path must point to a project JSON document.
// Postcondition: Returns a Project or a non-nil error.
func LoadFromFile(path string, opts LoadOptions) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project file %s: %w", path, err)
	}
	return Load(data, opts)
}

// Load builds a Project from a JSON document. It performs no IO, keeps the
// authored order of every list and object, and resolves cross-references by
// id only: dangling references are reported by DanglingReferences or at
// resolution time, never here.
//
// Postcondition: Returns a Project with freshly zeroed visit counters and the
// authored variable defaults, or an error matching ErrMalformedProject and no
// Project.
func Load(doc []byte, opts LoadOptions) (*Project, error) {
	if !gjson.ValidBytes(doc) {
		return nil, &MalformedError{Kind: KindProject, Index: -1, Reason: "document is not valid JSON"}
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return nil, &MalformedError{Kind: KindProject, Index: -1, Reason: "document root must be an object"}
	}

	l := loader{opts: opts}
	p := &Project{
		Name:            root.Get("name").String(),
		StartingElement: ElementID(root.Get("startingElement").String()),
	}

	boards := root.Get("boards")
	if !boards.IsArray() {
		return nil, &MalformedError{Kind: KindProject, Index: -1, Reason: "boards must be an array"}
	}
	var err error
	if p.Boards, err = parseList(boards, l.board); err != nil {
		return nil, err
	}
	if p.Locales, err = l.locales(root.Get("locales")); err != nil {
		return nil, err
	}
	if p.Variables, err = l.variables(root.Get("variables")); err != nil {
		return nil, err
	}
	if p.idx, err = buildIndex(p.Boards); err != nil {
		return nil, err
	}
	if p.Visits, err = l.visits(root.Get("visits"), p); err != nil {
		return nil, err
	}
	return p, nil
}

type loader struct {
	opts LoadOptions
}

func (l loader) display(s string) string {
	if l.opts.StripMarkup {
		return markup.Strip(s)
	}
	return s
}

// parseList applies parse to every entry of list in order. A missing list
// yields nil.
func parseList[T any](list gjson.Result, parse func(gjson.Result, int) (T, error)) ([]T, error) {
	if !list.Exists() || list.Type == gjson.Null {
		return nil, nil
	}
	var out []T
	var err error
	i := 0
	list.ForEach(func(_, v gjson.Result) bool {
		var item T
		item, err = parse(v, i)
		if err != nil {
			return false
		}
		out = append(out, item)
		i++
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// entity reads the fields shared by every entity: it must be an object and
// carry a non-empty string id.
func entity(kind Kind, v gjson.Result, i int) (string, error) {
	if !v.IsObject() {
		return "", &MalformedError{Kind: kind, Index: i, Reason: "must be an object"}
	}
	id := v.Get("id")
	if id.Type != gjson.String || id.String() == "" {
		return "", &MalformedError{Kind: kind, Index: i, Reason: "missing id"}
	}
	return id.String(), nil
}

func requiredString(kind Kind, id string, v gjson.Result, field string) (string, error) {
	f := v.Get(field)
	if f.Type != gjson.String || f.String() == "" {
		return "", &MalformedError{Kind: kind, ID: id, Index: -1, Reason: "missing " + field}
	}
	return f.String(), nil
}

func optionalString(kind Kind, id string, v gjson.Result, field string) (string, error) {
	f := v.Get(field)
	switch f.Type {
	case gjson.Null:
		return "", nil
	case gjson.String:
		return f.String(), nil
	default:
		return "", &MalformedError{Kind: kind, ID: id, Index: -1, Reason: field + " must be a string"}
	}
}

func stringList(kind Kind, id string, v gjson.Result, field string) ([]string, error) {
	f := v.Get(field)
	if !f.Exists() || f.Type == gjson.Null {
		return nil, nil
	}
	if !f.IsArray() {
		return nil, &MalformedError{Kind: kind, ID: id, Index: -1, Reason: field + " must be an array"}
	}
	var out []string
	for _, s := range f.Array() {
		if s.Type != gjson.String {
			return nil, &MalformedError{Kind: kind, ID: id, Index: -1, Reason: field + " must hold strings"}
		}
		out = append(out, s.String())
	}
	return out, nil
}

func nestedList(kind Kind, id string, v gjson.Result, field string) (gjson.Result, error) {
	f := v.Get(field)
	if f.Exists() && f.Type != gjson.Null && !f.IsArray() {
		return gjson.Result{}, &MalformedError{Kind: kind, ID: id, Index: -1, Reason: field + " must be an array"}
	}
	return f, nil
}

func (l loader) board(v gjson.Result, i int) (*Board, error) {
	id, err := entity(KindBoard, v, i)
	if err != nil {
		return nil, err
	}
	name, err := optionalString(KindBoard, id, v, "name")
	if err != nil {
		return nil, err
	}
	b := &Board{ID: BoardID(id), Name: l.display(name)}

	lists := make(map[string]gjson.Result)
	for _, field := range []string{"elements", "connections", "branches", "jumpers", "conditions", "components", "covers"} {
		if lists[field], err = nestedList(KindBoard, id, v, field); err != nil {
			return nil, err
		}
	}

	if b.Elements, err = parseList(lists["elements"], func(v gjson.Result, i int) (*Element, error) { return l.element(b.ID, v, i) }); err != nil {
		return nil, err
	}
	if b.Connections, err = parseList(lists["connections"], func(v gjson.Result, i int) (*Connection, error) { return connection(b.ID, v, i) }); err != nil {
		return nil, err
	}
	if b.Branches, err = parseList(lists["branches"], func(v gjson.Result, i int) (*Branch, error) { return branch(b.ID, v, i) }); err != nil {
		return nil, err
	}
	if b.Jumpers, err = parseList(lists["jumpers"], func(v gjson.Result, i int) (*Jumper, error) { return jumper(b.ID, v, i) }); err != nil {
		return nil, err
	}
	if b.Conditions, err = parseList(lists["conditions"], func(v gjson.Result, i int) (*Condition, error) { return condition(b.ID, v, i) }); err != nil {
		return nil, err
	}
	if b.Components, err = parseList(lists["components"], func(v gjson.Result, i int) (*Component, error) { return component(b.ID, v, i) }); err != nil {
		return nil, err
	}
	if b.Covers, err = parseList(lists["covers"], func(v gjson.Result, i int) (*Cover, error) { return cover(b.ID, v, i) }); err != nil {
		return nil, err
	}
	return b, nil
}

func (l loader) element(board BoardID, v gjson.Result, i int) (*Element, error) {
	id, err := entity(KindElement, v, i)
	if err != nil {
		return nil, err
	}
	e := &Element{ID: ElementID(id), Board: board}

	title, err := optionalString(KindElement, id, v, "title")
	if err != nil {
		return nil, err
	}
	e.Title = l.display(title)
	if e.Content, err = optionalString(KindElement, id, v, "content"); err != nil {
		return nil, err
	}
	cover, err := optionalString(KindElement, id, v, "cover")
	if err != nil {
		return nil, err
	}
	e.Cover = CoverID(cover)

	components, err := stringList(KindElement, id, v, "components")
	if err != nil {
		return nil, err
	}
	for _, c := range components {
		e.Components = append(e.Components, ComponentID(c))
	}
	if e.Attributes, err = attributes(KindElement, id, v); err != nil {
		return nil, err
	}
	if e.Translations, err = l.translations(id, v.Get("translations")); err != nil {
		return nil, err
	}
	return e, nil
}

// translations reads {"field": {"locale": "text"}}. Title translations are
// display text and follow the strip option; content translations are scripts.
func (l loader) translations(id string, v gjson.Result) (map[string]*localize.Text, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	if !v.IsObject() {
		return nil, &MalformedError{Kind: KindElement, ID: id, Index: -1, Reason: "translations must be an object"}
	}
	out := make(map[string]*localize.Text)
	var err error
	v.ForEach(func(field, locales gjson.Result) bool {
		if !locales.IsObject() {
			err = &MalformedError{Kind: KindElement, ID: id, Index: -1, Reason: "translations." + field.String() + " must be an object"}
			return false
		}
		text := &localize.Text{}
		locales.ForEach(func(locale, s gjson.Result) bool {
			if s.Type != gjson.String {
				err = &MalformedError{Kind: KindElement, ID: id, Index: -1,
					Reason: fmt.Sprintf("translation %s.%s must be a string", field.String(), locale.String())}
				return false
			}
			tr := s.String()
			if field.String() == FieldTitle {
				tr = l.display(tr)
			}
			text.AddTranslation(locale.String(), tr)
			return true
		})
		if err != nil {
			return false
		}
		out[field.String()] = text
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func attributes(kind Kind, id string, v gjson.Result) ([]Attribute, error) {
	list, err := nestedList(kind, id, v, "attributes")
	if err != nil {
		return nil, err
	}
	return parseList(list, func(a gjson.Result, i int) (Attribute, error) {
		if !a.IsObject() {
			return Attribute{}, &MalformedError{Kind: KindAttribute, Index: i, Reason: fmt.Sprintf("of %s %q must be an object", kind, id)}
		}
		name := a.Get("name")
		if name.Type != gjson.String || name.String() == "" {
			return Attribute{}, &MalformedError{Kind: KindAttribute, Index: i, Reason: fmt.Sprintf("of %s %q: missing name", kind, id)}
		}
		return Attribute{
			Name:  name.String(),
			Type:  a.Get("type").String(),
			Value: a.Get("value").String(),
		}, nil
	})
}

// endpointKind maps an authored endpoint type to a Kind.
func endpointKind(s string) (Kind, bool) {
	switch s {
	case "element", "elements":
		return KindElement, true
	case "branch", "branches":
		return KindBranch, true
	case "jumper", "jumpers":
		return KindJumper, true
	}
	return "", false
}

func connection(board BoardID, v gjson.Result, i int) (*Connection, error) {
	id, err := entity(KindConnection, v, i)
	if err != nil {
		return nil, err
	}
	c := &Connection{ID: ConnectionID(id), Board: board}
	if c.Label, err = optionalString(KindConnection, id, v, "label"); err != nil {
		return nil, err
	}

	source, err := requiredString(KindConnection, id, v, "source")
	if err != nil {
		return nil, err
	}
	sourceType := "element"
	if st := v.Get("sourceType"); st.Exists() {
		sourceType = st.String()
	}
	sk, ok := endpointKind(sourceType)
	if !ok {
		return nil, &MalformedError{Kind: KindConnection, ID: id, Index: -1, Reason: fmt.Sprintf("unknown sourceType %q", sourceType)}
	}
	c.Source = Ref{Kind: sk, ID: source}

	target, err := requiredString(KindConnection, id, v, "target")
	if err != nil {
		return nil, err
	}
	targetType, err := requiredString(KindConnection, id, v, "targetType")
	if err != nil {
		return nil, err
	}
	tk, ok := endpointKind(targetType)
	if !ok {
		return nil, &MalformedError{Kind: KindConnection, ID: id, Index: -1, Reason: fmt.Sprintf("unknown targetType %q", targetType)}
	}
	c.Target = Ref{Kind: tk, ID: target}
	return c, nil
}

func branch(board BoardID, v gjson.Result, i int) (*Branch, error) {
	id, err := entity(KindBranch, v, i)
	if err != nil {
		return nil, err
	}
	b := &Branch{ID: BranchID(id), Board: board}
	owner, err := optionalString(KindBranch, id, v, "element")
	if err != nil {
		return nil, err
	}
	b.Element = ElementID(owner)
	def, err := optionalString(KindBranch, id, v, "default")
	if err != nil {
		return nil, err
	}
	b.Default = ConnectionID(def)

	options, err := nestedList(KindBranch, id, v, "options")
	if err != nil {
		return nil, err
	}
	b.Options, err = parseList(options, func(o gjson.Result, i int) (BranchOption, error) {
		if !o.IsObject() {
			return BranchOption{}, &MalformedError{Kind: KindBranch, ID: id, Index: -1, Reason: fmt.Sprintf("option #%d must be an object", i)}
		}
		conn, err := requiredString(KindBranch, id, o, "connection")
		if err != nil {
			return BranchOption{}, err
		}
		cond, err := requiredString(KindBranch, id, o, "condition")
		if err != nil {
			return BranchOption{}, err
		}
		return BranchOption{Connection: ConnectionID(conn), Condition: ConditionID(cond)}, nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func condition(board BoardID, v gjson.Result, i int) (*Condition, error) {
	id, err := entity(KindCondition, v, i)
	if err != nil {
		return nil, err
	}
	script, err := optionalString(KindCondition, id, v, "script")
	if err != nil {
		return nil, err
	}
	return &Condition{ID: ConditionID(id), Board: board, Script: script}, nil
}

func jumper(board BoardID, v gjson.Result, i int) (*Jumper, error) {
	id, err := entity(KindJumper, v, i)
	if err != nil {
		return nil, err
	}
	j := &Jumper{ID: JumperID(id), Board: board}
	if j.Source, err = optionalString(KindJumper, id, v, "source"); err != nil {
		return nil, err
	}
	tb, err := requiredString(KindJumper, id, v, "board")
	if err != nil {
		return nil, err
	}
	te, err := requiredString(KindJumper, id, v, "element")
	if err != nil {
		return nil, err
	}
	j.TargetBoard = BoardID(tb)
	j.TargetElement = ElementID(te)
	return j, nil
}

func component(board BoardID, v gjson.Result, i int) (*Component, error) {
	id, err := entity(KindComponent, v, i)
	if err != nil {
		return nil, err
	}
	c := &Component{ID: ComponentID(id), Board: board, Name: v.Get("name").String()}
	assets, err := nestedList(KindComponent, id, v, "assets")
	if err != nil {
		return nil, err
	}
	c.Assets, err = parseList(assets, func(a gjson.Result, i int) (Asset, error) {
		if !a.IsObject() {
			return Asset{}, &MalformedError{Kind: KindComponent, ID: id, Index: -1, Reason: fmt.Sprintf("asset #%d must be an object", i)}
		}
		return Asset{Name: a.Get("name").String(), Type: a.Get("type").String(), File: a.Get("file").String()}, nil
	})
	if err != nil {
		return nil, err
	}
	if c.Attributes, err = attributes(KindComponent, id, v); err != nil {
		return nil, err
	}
	return c, nil
}

func cover(board BoardID, v gjson.Result, i int) (*Cover, error) {
	id, err := entity(KindCover, v, i)
	if err != nil {
		return nil, err
	}
	return &Cover{ID: CoverID(id), Board: board, Type: v.Get("type").String(), File: v.Get("file").String()}, nil
}

func (l loader) locales(v gjson.Result) ([]localize.Locale, error) {
	if v.Exists() && v.Type != gjson.Null && !v.IsArray() {
		return nil, &MalformedError{Kind: KindProject, Index: -1, Reason: "locales must be an array"}
	}
	return parseList(v, func(loc gjson.Result, i int) (localize.Locale, error) {
		if !loc.IsObject() {
			return localize.Locale{}, &MalformedError{Kind: KindLocale, Index: i, Reason: "must be an object"}
		}
		iso := loc.Get("iso")
		if iso.Type != gjson.String || iso.String() == "" {
			return localize.Locale{}, &MalformedError{Kind: KindLocale, Index: i, Reason: "missing iso"}
		}
		return localize.Locale{ISO: iso.String(), Base: loc.Get("base").Bool(), Name: loc.Get("name").String()}, nil
	})
}

// variables reads {"id": {"name", "type", "value"}} in document order. The
// name defaults to the id.
func (l loader) variables(v gjson.Result) ([]state.Variable, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	if !v.IsObject() {
		return nil, &MalformedError{Kind: KindProject, Index: -1, Reason: "variables must be an object"}
	}
	var out []state.Variable
	var err error
	v.ForEach(func(key, def gjson.Result) bool {
		id := key.String()
		if id == "" {
			err = &MalformedError{Kind: KindVariable, Index: len(out), Reason: "missing id"}
			return false
		}
		if !def.IsObject() {
			err = &MalformedError{Kind: KindVariable, ID: id, Index: -1, Reason: "must be an object"}
			return false
		}
		value := def.Get("value")
		if value.IsObject() || value.IsArray() {
			err = &MalformedError{Kind: KindVariable, ID: id, Index: -1, Reason: "value must be a scalar"}
			return false
		}
		name := def.Get("name").String()
		if name == "" {
			name = id
		}
		if scripting.Reserved(name) {
			err = &MalformedError{Kind: KindVariable, ID: id, Index: -1, Reason: fmt.Sprintf("name %q is reserved by the script runtime", name)}
			return false
		}
		typ := def.Get("type").String()
		if typ == "" {
			typ = "string"
		}
		out = append(out, state.Variable{ID: id, Name: name, Type: typ, Value: value.String()})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// visits zeroes a counter for every element and condition, then overlays the
// authored initial values for ids the project declares.
func (l loader) visits(v gjson.Result, p *Project) (map[string]uint64, error) {
	out := make(map[string]uint64, len(p.idx.elements)+len(p.idx.conditions))
	for id := range p.idx.elements {
		out[string(id)] = 0
	}
	for id := range p.idx.conditions {
		out[string(id)] = 0
	}
	if !v.Exists() || v.Type == gjson.Null {
		return out, nil
	}
	if !v.IsObject() {
		return nil, &MalformedError{Kind: KindProject, Index: -1, Reason: "visits must be an object"}
	}
	var err error
	v.ForEach(func(key, n gjson.Result) bool {
		id := key.String()
		if n.Type != gjson.Number || n.Num < 0 || n.Num != float64(int64(n.Num)) {
			err = &MalformedError{Kind: KindProject, Index: -1, Reason: fmt.Sprintf("visits.%s must be a non-negative integer", id)}
			return false
		}
		if _, ok := out[id]; ok {
			out[id] = n.Uint()
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
