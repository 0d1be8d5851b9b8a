package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkallos/timeloom/internal/event"
	"github.com/rkallos/timeloom/internal/history"
)

func intp(v int64) *int64 { return &v }

func buildHistory(t *testing.T) *history.History[int64] {
	t.Helper()
	genesis, err := event.New[int64]("o", 0, intp(0), nil, nil)
	require.NoError(t, err)
	h := history.New(genesis)
	e1, err := event.New("o", 10, intp(1), map[event.ObjectID]event.Time{"dep": 4}, nil)
	require.NoError(t, err)
	require.NoError(t, h.Append(e1))
	return h
}

func TestEvent_RoundTrip(t *testing.T) {
	e, err := event.New("o", 10, intp(7), map[event.ObjectID]event.Time{"dep": 4}, nil)
	require.NoError(t, err)

	w, err := EncodeEvent(e)
	require.NoError(t, err)

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": {"object": "o", "when": 10},
		"state": 7,
		"dependencies": {"dep": 4}
	}`, string(data))

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	decoded, err := DecodeEvent[int64](back, nil)
	require.NoError(t, err)
	assert.True(t, e.Equal(decoded))
}

func TestEvent_DestructionRoundTrip(t *testing.T) {
	e := event.NewDestruction[int64]("o", 20)
	w, err := EncodeEvent(e)
	require.NoError(t, err)

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": {"object": "o", "when": 20}, "state": null}`, string(data))

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	decoded, err := DecodeEvent[int64](back, nil)
	require.NoError(t, err)
	assert.True(t, decoded.Destroyed())
	assert.True(t, e.Equal(decoded))
}

func TestDecodeEvent_InvariantsEnforced(t *testing.T) {
	w := Event{
		ID:           event.Identifier{Object: "o", When: 10},
		State:        json.RawMessage("1"),
		Dependencies: map[string]int64{"o": 5},
	}
	_, err := DecodeEvent[int64](w, nil)
	assert.ErrorIs(t, err, event.ErrSelfDependency)
}

func TestDecodeEvent_RuleReattached(t *testing.T) {
	e, err := event.New("o", 10, intp(7), nil, nil)
	require.NoError(t, err)
	w, err := EncodeEvent(e)
	require.NoError(t, err)

	called := false
	rule := func(ev *event.Event[int64], deps map[event.ObjectID]*int64) (map[event.ObjectID]*event.Event[int64], error) {
		called = true
		return map[event.ObjectID]*event.Event[int64]{ev.Object(): event.NewDestruction[int64](ev.Object(), ev.When() + 1)}, nil
	}
	decoded, err := DecodeEvent(w, func(id event.Identifier) event.Advance[int64] { return rule })
	require.NoError(t, err)

	_, err = decoded.ComputeNext(nil)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestHistory_RoundTrip(t *testing.T) {
	h := buildHistory(t)

	w, err := EncodeHistory(h)
	require.NoError(t, err)

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"previousTransitions": {"0": 0},
		"lastEvent": {
			"id": {"object": "o", "when": 10},
			"state": 1,
			"dependencies": {"dep": 4}
		}
	}`, string(data))

	var back History
	require.NoError(t, json.Unmarshal(data, &back))
	rebuilt, err := DecodeHistory[int64](back, nil)
	require.NoError(t, err)

	assert.Equal(t, h.Object(), rebuilt.Object())
	assert.Equal(t, h.Start(), rebuilt.Start())
	assert.Equal(t, h.End(), rebuilt.End())
	assert.True(t, h.LastEvent().Equal(rebuilt.LastEvent()))
	assert.True(t, h.StateHistory().Equal(rebuilt.StateHistory()))
}

func TestTransitions_OrderedKeys(t *testing.T) {
	ts := Transitions{
		{When: 0, State: json.RawMessage("0")},
		{When: 2, State: json.RawMessage("5")},
		{When: 10, State: json.RawMessage("9")},
	}
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `{"0":0,"2":5,"10":9}`, string(data), "ascending time order, not lexicographic")

	// Unmarshal restores ascending order regardless of input order.
	var back Transitions
	require.NoError(t, json.Unmarshal([]byte(`{"10":9,"0":0,"2":5}`), &back))
	require.Len(t, back, 3)
	assert.Equal(t, int64(0), back[0].When)
	assert.Equal(t, int64(2), back[1].When)
	assert.Equal(t, int64(10), back[2].When)
}

func TestDecodeHistory_NullSettledState(t *testing.T) {
	w := History{
		PreviousTransitions: Transitions{{When: 0, State: json.RawMessage("null")}},
		LastEvent: Event{
			ID:    event.Identifier{Object: "o", When: 10},
			State: json.RawMessage("1"),
		},
	}
	_, err := DecodeHistory[int64](w, nil)
	assert.Error(t, err)
}
