package workflow

import (
	"context"
	"fmt"
	"time"

	"contractdesk.org/internal/authz"
)

// Transition is one allowed edge of a state machine: from a state via a
// trigger to a state, gated by a required permission and an optional guard
// predicate.
type Transition struct {
	From       string
	Trigger    string
	To         string
	Permission string
	Guard      string
}

// GuardFunc is a business precondition evaluated at transition time, after
// the permission check. A non-nil error rejects the transition; the error
// text explains which precondition failed.
type GuardFunc func(ctx context.Context, instance Instance, now time.Time) error

// Definition is the validated state machine for one entity type. Terminal
// states are simply states with no outgoing edges.
type Definition struct {
	EntityType   string
	States       []string
	InitialState string
	Transitions  []Transition

	states   map[string]struct{}
	edges    map[edgeKey]int
	outgoing map[string][]int
}

type edgeKey struct {
	from    string
	trigger string
}

// compile builds lookup indexes and checks the definition's invariants.
func (d *Definition) compile(guards map[string]GuardFunc) error {
	if d.EntityType == "" {
		return fmt.Errorf("%w: definition entity type is required", ErrInvalidInput)
	}
	if len(d.States) == 0 {
		return fmt.Errorf("%w: definition %q has no states", ErrInvalidInput, d.EntityType)
	}
	d.states = make(map[string]struct{}, len(d.States))
	for _, s := range d.States {
		if s == "" {
			return fmt.Errorf("%w: definition %q has an empty state", ErrInvalidInput, d.EntityType)
		}
		if _, dup := d.states[s]; dup {
			return fmt.Errorf("%w: definition %q declares state %q twice", ErrInvalidInput, d.EntityType, s)
		}
		d.states[s] = struct{}{}
	}
	if _, ok := d.states[d.InitialState]; !ok {
		return fmt.Errorf("%w: definition %q initial state %q is not a member of states", ErrInvalidInput, d.EntityType, d.InitialState)
	}

	d.edges = make(map[edgeKey]int, len(d.Transitions))
	d.outgoing = make(map[string][]int)
	for i, tr := range d.Transitions {
		if tr.Trigger == "" {
			return fmt.Errorf("%w: definition %q transition %d has an empty trigger", ErrInvalidInput, d.EntityType, i)
		}
		if _, ok := d.states[tr.From]; !ok {
			return fmt.Errorf("%w: definition %q transition %q references unknown from state %q", ErrInvalidInput, d.EntityType, tr.Trigger, tr.From)
		}
		if _, ok := d.states[tr.To]; !ok {
			return fmt.Errorf("%w: definition %q transition %q references unknown to state %q", ErrInvalidInput, d.EntityType, tr.Trigger, tr.To)
		}
		if _, err := authz.ParsePermission(tr.Permission); err != nil {
			return fmt.Errorf("%w: definition %q transition %q: %v", ErrInvalidInput, d.EntityType, tr.Trigger, err)
		}
		if tr.Guard != "" {
			if _, ok := guards[tr.Guard]; !ok {
				return fmt.Errorf("%w: definition %q transition %q references unknown guard %q", ErrInvalidInput, d.EntityType, tr.Trigger, tr.Guard)
			}
		}
		key := edgeKey{from: tr.From, trigger: tr.Trigger}
		if _, dup := d.edges[key]; dup {
			return fmt.Errorf("%w: definition %q has two transitions from %q via %q", ErrInvalidInput, d.EntityType, tr.From, tr.Trigger)
		}
		d.edges[key] = i
		d.outgoing[tr.From] = append(d.outgoing[tr.From], i)
	}
	return nil
}

// FindTransition returns the single edge leaving from via trigger, if any.
func (d *Definition) FindTransition(from, trigger string) (Transition, bool) {
	i, ok := d.edges[edgeKey{from: from, trigger: trigger}]
	if !ok {
		return Transition{}, false
	}
	return d.Transitions[i], true
}

// TransitionsFrom returns the edges leaving a state in declaration order.
func (d *Definition) TransitionsFrom(state string) []Transition {
	idx := d.outgoing[state]
	out := make([]Transition, 0, len(idx))
	for _, i := range idx {
		out = append(out, d.Transitions[i])
	}
	return out
}

// HasState reports state membership.
func (d *Definition) HasState(state string) bool {
	_, ok := d.states[state]
	return ok
}

// Terminal reports whether a state has no outgoing edges.
func (d *Definition) Terminal(state string) bool {
	return len(d.outgoing[state]) == 0
}

// Registry holds the validated workflow definitions and guard predicates for
// the process. It is built once at startup and read-only afterwards; a
// malformed definition fails construction rather than the first transition.
type Registry struct {
	definitions map[string]*Definition
	guards      map[string]GuardFunc
}

// NewRegistry validates every definition eagerly and indexes it by entity
// type.
func NewRegistry(defs []Definition, guards map[string]GuardFunc) (*Registry, error) {
	r := &Registry{
		definitions: make(map[string]*Definition, len(defs)),
		guards:      make(map[string]GuardFunc, len(guards)),
	}
	for name, fn := range guards {
		if fn == nil {
			return nil, fmt.Errorf("%w: guard %q is nil", ErrInvalidInput, name)
		}
		r.guards[name] = fn
	}
	for i := range defs {
		def := defs[i]
		if err := def.compile(r.guards); err != nil {
			return nil, err
		}
		if _, dup := r.definitions[def.EntityType]; dup {
			return nil, fmt.Errorf("%w: duplicate definition for entity type %q", ErrInvalidInput, def.EntityType)
		}
		r.definitions[def.EntityType] = &def
	}
	return r, nil
}

// Lookup returns the definition for an entity type.
func (r *Registry) Lookup(entityType string) (*Definition, error) {
	def, ok := r.definitions[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: no workflow defined for entity type %q", ErrNotFound, entityType)
	}
	return def, nil
}

// Guard returns a registered guard predicate by name.
func (r *Registry) Guard(name string) (GuardFunc, bool) {
	fn, ok := r.guards[name]
	return fn, ok
}

// EntityTypes lists the registered entity types in unspecified order.
func (r *Registry) EntityTypes() []string {
	out := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		out = append(out, name)
	}
	return out
}
