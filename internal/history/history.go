package history

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rkallos/timeloom/internal/event"
)

// Reader is the read/observe contract of an object history. *History
// implements it; the universe hands Readers to code that must not mutate.
type Reader[S comparable] interface {
	Object() event.ObjectID
	Start() event.Time
	End() event.Time
	LastEvent() *event.Event[S]
	PreviousTransitions() []event.TimestampedState[S]
	StateHistory() *StateFunction[S]

	ObserveEvents(ctx context.Context) <-chan *event.Event[S]
	ObserveTransitions(ctx context.Context) <-chan event.TimestampedState[S]
	ObserveState(ctx context.Context, t event.Time) <-chan Reading[S]
}

// snapshot is the immutable (previousTransitions, lastEvent) pair. Appends
// install a fresh snapshot; readers load the current one without locking.
type snapshot[S comparable] struct {
	previous []event.TimestampedState[S] // ascending, strictly increasing
	last     *event.Event[S]
}

func (s *snapshot[S]) end() event.Time {
	if s.last.Destroyed() {
		return event.EndOfTime
	}
	return s.last.When()
}

// all returns the full transition list including the last event, for building
// the derived step function.
func (s *snapshot[S]) all() []event.TimestampedState[S] {
	out := make([]event.TimestampedState[S], 0, len(s.previous)+1)
	out = append(out, s.previous...)
	return append(out, s.last.Timestamped())
}

// History is a modifiable object history: the object's identity, its past
// transitions, and the current last event, extended only by Append and
// CompareAndAppend. Each History is an independently-synchronized unit;
// different objects' histories share no locks.
type History[S comparable] struct {
	object event.ObjectID
	start  event.Time

	// mu serializes mutation and subscriber-set changes. It is never held
	// across a channel send or any other suspension point.
	mu   sync.Mutex
	snap atomic.Pointer[snapshot[S]]
	subs map[*subscriber[S]]struct{}
}

// New creates a history from its genesis event. The genesis state is the
// object's state at and after its start time; before start, the object has
// no state.
func New[S comparable](genesis *event.Event[S]) *History[S] {
	h := &History[S]{
		object: genesis.Object(),
		start:  genesis.When(),
		subs:   make(map[*subscriber[S]]struct{}),
	}
	h.snap.Store(&snapshot[S]{last: genesis})
	return h
}

// Reconstruct rebuilds a history from persisted parts: the past transitions
// (ascending, non-null states) and the last event. Used for resumption and
// deserialization; the result is indistinguishable from a history built by
// the equivalent sequence of appends.
func Reconstruct[S comparable](previous []event.TimestampedState[S], last *event.Event[S]) (*History[S], error) {
	for i, ts := range previous {
		if ts.State == nil {
			return nil, fmt.Errorf("%w: null state at past transition %d", ErrBadReconstruction, ts.When)
		}
		if i > 0 && previous[i-1].When >= ts.When {
			return nil, fmt.Errorf("%w: transition times not strictly increasing at %d", ErrBadReconstruction, ts.When)
		}
	}
	if n := len(previous); n > 0 && previous[n-1].When >= last.When() {
		return nil, fmt.Errorf("%w: last event at %d not after final past transition", ErrBadReconstruction, last.When())
	}
	start := last.When()
	if len(previous) > 0 {
		start = previous[0].When
	}
	copied := make([]event.TimestampedState[S], len(previous))
	copy(copied, previous)

	h := &History[S]{
		object: last.Object(),
		start:  start,
		subs:   make(map[*subscriber[S]]struct{}),
	}
	h.snap.Store(&snapshot[S]{previous: copied, last: last})
	return h, nil
}

// Object returns the id of the object this history records.
func (h *History[S]) Object() event.ObjectID { return h.object }

// Start returns the time of the object's first transition. Before Start the
// object has no state.
func (h *History[S]) Start() event.Time { return h.start }

// End returns the frontier of reliable knowledge: the last event's time, or
// EndOfTime once the object is destroyed. States at times strictly before
// End can never be revised.
func (h *History[S]) End() event.Time { return h.snap.Load().end() }

// LastEvent returns the current last event. It is the only part of the
// history a future append can supersede.
func (h *History[S]) LastEvent() *event.Event[S] { return h.snap.Load().last }

// Destroyed reports whether the history is closed by a destruction event.
func (h *History[S]) Destroyed() bool { return h.snap.Load().last.Destroyed() }

// PreviousTransitions returns a copy of the settled transitions: exactly the
// state history with its final transition removed.
func (h *History[S]) PreviousTransitions() []event.TimestampedState[S] {
	prev := h.snap.Load().previous
	out := make([]event.TimestampedState[S], len(prev))
	copy(out, prev)
	return out
}

// StateHistory returns the step function derived from all transitions,
// including the (still mutable) last event.
func (h *History[S]) StateHistory() *StateFunction[S] {
	return NewStateFunction(h.snap.Load().all())
}

// StateAt returns the state holding at time t given currently known history.
// The answer is provisional when t >= End.
func (h *History[S]) StateAt(t event.Time) *S {
	return h.StateHistory().At(t)
}

// Append extends the history with e, folding the old last event into the
// settled transitions and publishing e to all live subscribers.
//
// Append is the single-writer primitive: it validates against the current
// last event and fails rather than corrupt state, but concurrent writers
// should use CompareAndAppend.
func (h *History[S]) Append(e *event.Event[S]) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appendLocked(e)
}

// CompareAndAppend atomically appends e only if the current last event is
// value-equal to expected. It returns (false, nil) on a lost race, the
// designed optimistic-concurrency signal to re-read and retry, not an error.
// Contract violations on a matching expected still surface as errors.
func (h *History[S]) CompareAndAppend(expected, e *event.Event[S]) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.snap.Load().last.Equal(expected) {
		return false, nil
	}
	if err := h.appendLocked(e); err != nil {
		return false, err
	}
	return true, nil
}

func (h *History[S]) appendLocked(e *event.Event[S]) error {
	cur := h.snap.Load()
	if e.Object() != h.object {
		return fmt.Errorf("%w: got %s, history is %s", ErrWrongObject, e.Object(), h.object)
	}
	if cur.last.Destroyed() {
		return fmt.Errorf("%w: %s destroyed at %d", ErrDestroyed, h.object, cur.last.When())
	}
	if e.When() <= cur.last.When() {
		return fmt.Errorf("%w: %d <= %d", ErrNonMonotonic, e.When(), cur.last.When())
	}

	previous := make([]event.TimestampedState[S], 0, len(cur.previous)+1)
	previous = append(previous, cur.previous...)
	previous = append(previous, cur.last.Timestamped())
	h.snap.Store(&snapshot[S]{previous: previous, last: e})

	// Fan out in append order. push never blocks: each subscriber queues
	// independently and drains at its own pace.
	for sub := range h.subs {
		sub.push(e)
	}
	return nil
}

var _ Reader[int64] = (*History[int64])(nil)
