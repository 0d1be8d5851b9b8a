package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int64) *int64 { return &v }

func TestNew_Valid(t *testing.T) {
	state := intp(7)
	e, err := New("alpha", 10, state, map[ObjectID]Time{"beta": 4, "gamma": 9}, nil)
	require.NoError(t, err)

	assert.Equal(t, ObjectID("alpha"), e.Object())
	assert.Equal(t, Time(10), e.When())
	assert.Equal(t, Identifier{Object: "alpha", When: 10}, e.ID())
	assert.Equal(t, int64(7), *e.State())
	assert.False(t, e.Destroyed())
	assert.Equal(t, map[ObjectID]Time{"beta": 4, "gamma": 9}, e.Dependencies())
}

func TestNew_SelfDependency(t *testing.T) {
	_, err := New("alpha", 10, intp(1), map[ObjectID]Time{"alpha": 5}, nil)
	assert.ErrorIs(t, err, ErrSelfDependency)
}

func TestNew_NonPastDependency(t *testing.T) {
	// Equal time is as invalid as a future time.
	_, err := New("alpha", 10, intp(1), map[ObjectID]Time{"beta": 10}, nil)
	assert.ErrorIs(t, err, ErrNonPastDependency)

	_, err = New("alpha", 10, intp(1), map[ObjectID]Time{"beta": 11}, nil)
	assert.ErrorIs(t, err, ErrNonPastDependency)
}

func TestNew_DestructionWithDependencies(t *testing.T) {
	_, err := New[int64]("alpha", 10, nil, map[ObjectID]Time{"beta": 5}, nil)
	assert.ErrorIs(t, err, ErrDestructionDependencies)
}

func TestNewDestruction(t *testing.T) {
	e := NewDestruction[int64]("alpha", 20)
	assert.True(t, e.Destroyed())
	assert.Nil(t, e.State())
	assert.Empty(t, e.Dependencies())
}

func TestEvent_DependenciesCopied(t *testing.T) {
	deps := map[ObjectID]Time{"beta": 4}
	e, err := New("alpha", 10, intp(1), deps, nil)
	require.NoError(t, err)

	// Mutating the caller's map must not leak into the event.
	deps["beta"] = 9
	assert.Equal(t, Time(4), e.Dependencies()["beta"])

	// Mutating the returned copy must not leak either.
	e.Dependencies()["beta"] = 1
	assert.Equal(t, Time(4), e.Dependencies()["beta"])
}

func TestEvent_Equal(t *testing.T) {
	mk := func(state *int64, deps map[ObjectID]Time) *Event[int64] {
		e, err := New("alpha", 10, state, deps, nil)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return e
	}

	a := mk(intp(7), map[ObjectID]Time{"beta": 4})
	b := mk(intp(7), map[ObjectID]Time{"beta": 4})
	assert.True(t, a.Equal(b), "equal triples must compare equal")

	// Separate state allocations with the same value are still equal.
	c := mk(intp(7), map[ObjectID]Time{"beta": 4})
	assert.True(t, a.Equal(c))

	assert.False(t, a.Equal(mk(intp(8), map[ObjectID]Time{"beta": 4})), "state differs")
	assert.False(t, a.Equal(mk(intp(7), map[ObjectID]Time{"beta": 3})), "dep time differs")
	assert.False(t, a.Equal(mk(intp(7), nil)), "dep set differs")
	assert.False(t, a.Equal(nil))

	d, err := New("alpha", 11, intp(7), map[ObjectID]Time{"beta": 4}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assert.False(t, a.Equal(d), "time differs")

	// Advance rules are behavior, not identity.
	withRule := a.WithAdvance(func(e *Event[int64], deps map[ObjectID]*int64) (map[ObjectID]*Event[int64], error) {
		return nil, nil
	})
	assert.True(t, a.Equal(withRule))
}

func TestEvent_ComputeNext(t *testing.T) {
	var sawDeps map[ObjectID]*int64
	rule := func(e *Event[int64], deps map[ObjectID]*int64) (map[ObjectID]*Event[int64], error) {
		sawDeps = deps
		next, err := New(e.Object(), e.When()+1, intp(*e.State()+1), nil, nil)
		if err != nil {
			return nil, err
		}
		return map[ObjectID]*Event[int64]{e.Object(): next}, nil
	}

	e, err := New("alpha", 10, intp(7), map[ObjectID]Time{"beta": 4}, rule)
	require.NoError(t, err)

	succ, err := e.ComputeNext(map[ObjectID]*int64{"beta": intp(3)})
	require.NoError(t, err)
	require.Len(t, succ, 1)
	assert.Equal(t, Time(11), succ["alpha"].When())
	assert.Equal(t, int64(8), *succ["alpha"].State())
	assert.Equal(t, int64(3), *sawDeps["beta"])
}

func TestEvent_ComputeNext_DestroyedPanics(t *testing.T) {
	e := NewDestruction[int64]("alpha", 20)
	assert.Panics(t, func() { _, _ = e.ComputeNext(nil) })
}

func TestEvent_ComputeNext_NoRulePanics(t *testing.T) {
	e, err := New("alpha", 10, intp(7), nil, nil)
	require.NoError(t, err)
	assert.Panics(t, func() { _, _ = e.ComputeNext(nil) })
}

func TestStateEqual(t *testing.T) {
	assert.True(t, StateEqual[int64](nil, nil))
	assert.True(t, StateEqual(intp(3), intp(3)))
	assert.False(t, StateEqual(intp(3), intp(4)))
	assert.False(t, StateEqual(intp(3), nil))
	assert.False(t, StateEqual(nil, intp(3)))
}
