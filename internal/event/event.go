package event

import (
	"errors"
	"fmt"
)

// Construction contract violations. These indicate defects in the calling
// code and are never retried by the engine.
var (
	// ErrSelfDependency indicates an event depending on its own object.
	ErrSelfDependency = errors.New("event: dependency on own object")

	// ErrNonPastDependency indicates a dependency time at or after the
	// event's own time.
	ErrNonPastDependency = errors.New("event: dependency time not strictly in the past")

	// ErrDestructionDependencies indicates a destruction event carrying
	// dependencies.
	ErrDestructionDependencies = errors.New("event: destruction event must have no dependencies")
)

// Advance computes the successor events for a non-destroyed event, given the
// actual state of each dependency at its declared time. It must return at
// least a continuation event for the event's own object unless it is
// intentionally producing a destruction event, and may additionally return
// creation events for brand-new object ids.
type Advance[S comparable] func(e *Event[S], deps map[ObjectID]*S) (map[ObjectID]*Event[S], error)

// Event is an immutable record of an object transitioning to a state at a
// point in logical time. A nil state marks destruction, terminal for the
// object's history.
//
// Equality (Equal) covers the (id, state, dependencies) triple only; the
// advance rule is behavior, not identity.
type Event[S comparable] struct {
	id      Identifier
	state   *S
	deps    map[ObjectID]Time
	advance Advance[S]
}

// New constructs an event, validating the causality invariants. The
// dependency map is copied; callers may reuse theirs. A nil advance rule is
// only meaningful for destruction events and for deserialized events whose
// rule is reattached by the application.
func New[S comparable](object ObjectID, when Time, state *S, deps map[ObjectID]Time, advance Advance[S]) (*Event[S], error) {
	if state == nil && len(deps) > 0 {
		return nil, ErrDestructionDependencies
	}
	var copied map[ObjectID]Time
	if len(deps) > 0 {
		copied = make(map[ObjectID]Time, len(deps))
		for obj, t := range deps {
			if obj == object {
				return nil, fmt.Errorf("%w: %s", ErrSelfDependency, obj)
			}
			if t >= when {
				return nil, fmt.Errorf("%w: %s at %d, event at %d", ErrNonPastDependency, obj, t, when)
			}
			copied[obj] = t
		}
	}
	return &Event[S]{
		id:      Identifier{Object: object, When: when},
		state:   state,
		deps:    copied,
		advance: advance,
	}, nil
}

// NewDestruction constructs a destruction event for object at the given time.
func NewDestruction[S comparable](object ObjectID, when Time) *Event[S] {
	e, err := New[S](object, when, nil, nil, nil)
	if err != nil {
		// Unreachable: destruction with no deps cannot violate invariants.
		panic(err)
	}
	return e
}

// ID returns the identifier naming this event's point in history.
func (e *Event[S]) ID() Identifier { return e.id }

// Object returns the object this event belongs to.
func (e *Event[S]) Object() ObjectID { return e.id.Object }

// When returns the logical time of the transition.
func (e *Event[S]) When() Time { return e.id.When }

// State returns the state transitioned to, or nil for a destruction event.
func (e *Event[S]) State() *S { return e.state }

// Destroyed reports whether this is a destruction event.
func (e *Event[S]) Destroyed() bool { return e.state == nil }

// Dependencies returns a copy of the (object, time) pairs this event's
// successor computation needs. Never contains the event's own object.
func (e *Event[S]) Dependencies() map[ObjectID]Time {
	if len(e.deps) == 0 {
		return nil
	}
	out := make(map[ObjectID]Time, len(e.deps))
	for obj, t := range e.deps {
		out[obj] = t
	}
	return out
}

// Timestamped projects the event to its (when, state) pair.
func (e *Event[S]) Timestamped() TimestampedState[S] {
	return TimestampedState[S]{When: e.id.When, State: e.state}
}

// WithAdvance returns a copy of the event carrying the given advance rule.
// Used when reattaching rules to deserialized events.
func (e *Event[S]) WithAdvance(advance Advance[S]) *Event[S] {
	clone := *e
	clone.advance = advance
	return &clone
}

// Equal reports value equality over (id, state, dependencies), regardless of
// the object identity of the underlying map.
func (e *Event[S]) Equal(other *Event[S]) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.id != other.id || !StateEqual(e.state, other.state) {
		return false
	}
	if len(e.deps) != len(other.deps) {
		return false
	}
	for obj, t := range e.deps {
		if ot, ok := other.deps[obj]; !ok || ot != t {
			return false
		}
	}
	return true
}

// ComputeNext invokes the advance rule with the actual state of each
// dependency, evaluated at the declared dependency time, and returns the map
// of successor events keyed by object id.
//
// Calling ComputeNext on a destroyed event, or on an event without an
// attached rule, is a programming error and panics.
func (e *Event[S]) ComputeNext(deps map[ObjectID]*S) (map[ObjectID]*Event[S], error) {
	if e.Destroyed() {
		panic(fmt.Sprintf("event: ComputeNext on destroyed object %s at %d", e.id.Object, e.id.When))
	}
	if e.advance == nil {
		panic(fmt.Sprintf("event: ComputeNext without advance rule on %s at %d", e.id.Object, e.id.When))
	}
	return e.advance(e, deps)
}
