package history

import (
	"sort"

	"github.com/rkallos/timeloom/internal/event"
)

// StateFunction is the step function derived from an object's transitions.
// It is an immutable value: histories hand out fresh instances, so a function
// never changes after it is obtained.
type StateFunction[S comparable] struct {
	transitions []event.TimestampedState[S] // ascending, strictly increasing times
}

// NewStateFunction builds a step function from ascending transitions.
// The slice is not copied; callers hand over ownership.
func NewStateFunction[S comparable](transitions []event.TimestampedState[S]) *StateFunction[S] {
	return &StateFunction[S]{transitions: transitions}
}

// At returns the state holding at time t: nil before the first transition,
// otherwise the state of the latest transition at or before t. A nil state
// at or after a destruction transition means the object no longer exists.
func (f *StateFunction[S]) At(t event.Time) *S {
	// First index with when > t.
	i := sort.Search(len(f.transitions), func(i int) bool {
		return f.transitions[i].When > t
	})
	if i == 0 {
		return nil
	}
	return f.transitions[i-1].State
}

// Transitions returns a copy of the underlying transitions, ascending.
func (f *StateFunction[S]) Transitions() []event.TimestampedState[S] {
	out := make([]event.TimestampedState[S], len(f.transitions))
	copy(out, f.transitions)
	return out
}

// Len returns the number of transitions.
func (f *StateFunction[S]) Len() int { return len(f.transitions) }

// Equal reports whether two step functions have identical transitions.
func (f *StateFunction[S]) Equal(other *StateFunction[S]) bool {
	if len(f.transitions) != len(other.transitions) {
		return false
	}
	for i, ts := range f.transitions {
		if ts.When != other.transitions[i].When || !event.StateEqual(ts.State, other.transitions[i].State) {
			return false
		}
	}
	return true
}
