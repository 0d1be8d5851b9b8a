package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/rkallos/timeloom/internal/event"
	"github.com/rkallos/timeloom/internal/history"
)

// Event is the wire form of an engine event. State is raw JSON; the literal
// null marks a destruction event. Advance rules are behavior, not data:
// decoding reattaches them through a RuleResolver.
type Event struct {
	ID           event.Identifier `json:"id"`
	State        json.RawMessage  `json:"state"`
	Dependencies map[string]int64 `json:"dependencies,omitempty"`
}

// History is the wire form of an object history: the settled transitions in
// ascending time order plus the last event. Round-tripping reproduces an
// object with identical object, start, end, lastEvent and state history.
type History struct {
	PreviousTransitions Transitions `json:"previousTransitions"`
	LastEvent           Event       `json:"lastEvent"`
}

// Transition is one settled (when, state) pair. Settled states are never
// null; only the last event may be a destruction.
type Transition struct {
	When  int64
	State json.RawMessage
}

// Transitions marshals as a JSON object keyed by decimal time, ascending,
// e.g. {"0":0,"10":1}. Ascending key order is part of the wire contract.
type Transitions []Transition

// MarshalJSON implements the ordered-object encoding.
func (ts Transitions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range ts {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strconv.FormatInt(t.When, 10))
		buf.WriteString(`":`)
		buf.Write(t.State)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the object form in any key order and restores
// ascending time order.
func (ts *Transitions) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Transitions, 0, len(m))
	for k, v := range m {
		when, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return fmt.Errorf("wire: transition key %q is not a time: %w", k, err)
		}
		out = append(out, Transition{When: when, State: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].When < out[j].When })
	*ts = out
	return nil
}

// RuleResolver reattaches an advance rule to a decoded event. Returning nil
// leaves the event without a rule, which is fine for destruction events and
// for histories that are only read.
type RuleResolver[S comparable] func(id event.Identifier) event.Advance[S]

var jsonNull = json.RawMessage("null")

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// EncodeEvent converts an engine event to its wire form.
func EncodeEvent[S comparable](e *event.Event[S]) (Event, error) {
	w := Event{ID: e.ID()}
	if s := e.State(); s != nil {
		raw, err := json.Marshal(s)
		if err != nil {
			return Event{}, fmt.Errorf("wire: encode state of %s at %d: %w", e.Object(), e.When(), err)
		}
		w.State = raw
	} else {
		w.State = jsonNull
	}
	if deps := e.Dependencies(); len(deps) > 0 {
		w.Dependencies = make(map[string]int64, len(deps))
		for obj, t := range deps {
			w.Dependencies[string(obj)] = int64(t)
		}
	}
	return w, nil
}

// DecodeEvent converts a wire event back to an engine event, enforcing the
// construction invariants and reattaching the advance rule via resolve.
func DecodeEvent[S comparable](w Event, resolve RuleResolver[S]) (*event.Event[S], error) {
	var state *S
	if !isNull(w.State) {
		state = new(S)
		if err := json.Unmarshal(w.State, state); err != nil {
			return nil, fmt.Errorf("wire: decode state of %s at %d: %w", w.ID.Object, w.ID.When, err)
		}
	}
	var deps map[event.ObjectID]event.Time
	if len(w.Dependencies) > 0 {
		deps = make(map[event.ObjectID]event.Time, len(w.Dependencies))
		for obj, t := range w.Dependencies {
			deps[event.ObjectID(obj)] = event.Time(t)
		}
	}
	var rule event.Advance[S]
	if resolve != nil {
		rule = resolve(w.ID)
	}
	return event.New(w.ID.Object, w.ID.When, state, deps, rule)
}

// EncodeHistory converts an object history to its wire form.
func EncodeHistory[S comparable](h *history.History[S]) (History, error) {
	prev := h.PreviousTransitions()
	ts := make(Transitions, 0, len(prev))
	for _, p := range prev {
		raw, err := json.Marshal(p.State)
		if err != nil {
			return History{}, fmt.Errorf("wire: encode transition of %s at %d: %w", h.Object(), p.When, err)
		}
		ts = append(ts, Transition{When: int64(p.When), State: raw})
	}
	last, err := EncodeEvent(h.LastEvent())
	if err != nil {
		return History{}, err
	}
	return History{PreviousTransitions: ts, LastEvent: last}, nil
}

// DecodeHistory reconstructs an object history from its wire form.
func DecodeHistory[S comparable](w History, resolve RuleResolver[S]) (*history.History[S], error) {
	prev := make([]event.TimestampedState[S], 0, len(w.PreviousTransitions))
	for _, t := range w.PreviousTransitions {
		if isNull(t.State) {
			return nil, fmt.Errorf("wire: null state in settled transition at %d", t.When)
		}
		state := new(S)
		if err := json.Unmarshal(t.State, state); err != nil {
			return nil, fmt.Errorf("wire: decode transition at %d: %w", t.When, err)
		}
		prev = append(prev, event.TimestampedState[S]{When: event.Time(t.When), State: state})
	}
	last, err := DecodeEvent(w.LastEvent, resolve)
	if err != nil {
		return nil, err
	}
	return history.Reconstruct(prev, last)
}
