package schema

// Element is one documentable node of a schema: a record, field, enum,
// object, property or message. Format parsers fill the structural fields;
// the orchestrator owns the rest.
type Element struct {
	Path   Path
	Kind   Kind
	Name   string
	Type   string
	Parent string

	// ParentPath groups siblings for duplicate detection.
	ParentPath Path

	Siblings []string
	Default  string
	Symbols  []string

	ExistingDoc  string
	CandidateDoc string
	Confidence   Confidence
	Status       Status
	FlagReasons  []string
	Rounds       int
	Error        string
}

// Key returns the dotted path.
func (e *Element) Key() string {
	return e.Path.String()
}

// Transition moves e to status to, or returns ErrInvalidTransition.
func (e *Element) Transition(to Status) error {
	if !CanTransition(e.Status, to) {
		return transitionError(e.Path, e.Status, to)
	}
	e.Status = to
	return nil
}

// Fail marks e failed with reason. A best-effort candidate, if any, is kept
// at low confidence.
func (e *Element) Fail(reason string) error {
	if err := e.Transition(StatusFailed); err != nil {
		return err
	}
	e.Error = reason
	if e.CandidateDoc != "" {
		e.Confidence = ConfidenceLow
	}
	return nil
}

// Pending reports whether e still needs work.
func (e *Element) Pending() bool {
	switch e.Status {
	case StatusUndocumented, StatusGenerated, StatusFlagged, StatusRefined:
		return true
	}
	return false
}

// Catalog is the ordered list of a schema's documentable elements.
type Catalog []*Element

// Lookup returns the element with the given dotted path, or nil.
func (c Catalog) Lookup(key string) *Element {
	for _, e := range c {
		if e.Key() == key {
			return e
		}
	}
	return nil
}

// Index maps dotted paths to elements.
func (c Catalog) Index() map[string]*Element {
	idx := make(map[string]*Element, len(c))
	for _, e := range c {
		idx[e.Key()] = e
	}
	return idx
}

// LinkSiblings fills Siblings for every element from the names of other
// elements sharing its ParentPath. Parsers call it once after extraction.
func (c Catalog) LinkSiblings() {
	groups := make(map[string][]*Element)
	var order []string
	for _, e := range c {
		if e.ParentPath == nil {
			continue
		}
		k := e.ParentPath.String()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}
	for _, k := range order {
		members := groups[k]
		for _, e := range members {
			siblings := make([]string, 0, len(members)-1)
			for _, o := range members {
				if o != e {
					siblings = append(siblings, o.Name)
				}
			}
			e.Siblings = siblings
		}
	}
}

// WithStatus returns the elements currently in any of the given statuses,
// in catalog order.
func (c Catalog) WithStatus(statuses ...Status) []*Element {
	var out []*Element
	for _, e := range c {
		for _, s := range statuses {
			if e.Status == s {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Count returns how many elements have status s.
func (c Catalog) Count(s Status) int {
	n := 0
	for _, e := range c {
		if e.Status == s {
			n++
		}
	}
	return n
}
