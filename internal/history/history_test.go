package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkallos/timeloom/internal/event"
	"github.com/rkallos/timeloom/internal/testutil"
)

// mustEvent builds an event or fails the test.
func mustEvent(t *testing.T, object event.ObjectID, when event.Time, state *int64) *event.Event[int64] {
	t.Helper()
	e, err := event.New(object, when, state, nil, nil)
	require.NoError(t, err)
	return e
}

func TestNew_Genesis(t *testing.T) {
	genesis := mustEvent(t, "o", 0, intp(0))
	h := New(genesis)

	assert.Equal(t, event.ObjectID("o"), h.Object())
	assert.Equal(t, event.Time(0), h.Start())
	assert.Equal(t, event.Time(0), h.End())
	assert.True(t, h.LastEvent().Equal(genesis))
	assert.Empty(t, h.PreviousTransitions())
	assert.Equal(t, int64(0), *h.StateAt(0))
	assert.Nil(t, h.StateAt(-1))
}

func TestAppend_AdvancesFrontier(t *testing.T) {
	h := New(mustEvent(t, "o", 0, intp(0)))
	e1 := mustEvent(t, "o", 10, intp(1))

	require.NoError(t, h.Append(e1))

	assert.Equal(t, event.Time(10), h.End())
	assert.True(t, h.LastEvent().Equal(e1))
	prev := h.PreviousTransitions()
	require.Len(t, prev, 1)
	assert.Equal(t, event.Time(0), prev[0].When)
	assert.Equal(t, int64(0), *prev[0].State)
}

func TestAppend_ContractViolations(t *testing.T) {
	h := New(mustEvent(t, "o", 5, intp(0)))

	assert.ErrorIs(t, h.Append(mustEvent(t, "other", 10, intp(1))), ErrWrongObject)
	assert.ErrorIs(t, h.Append(mustEvent(t, "o", 5, intp(1))), ErrNonMonotonic)
	assert.ErrorIs(t, h.Append(mustEvent(t, "o", 3, intp(1))), ErrNonMonotonic)

	// Failed appends leave the history unchanged.
	assert.Equal(t, event.Time(5), h.End())
	assert.Empty(t, h.PreviousTransitions())
}

func TestAppend_AfterDestruction(t *testing.T) {
	h := New(mustEvent(t, "o", 0, intp(0)))
	require.NoError(t, h.Append(event.NewDestruction[int64]("o", 20)))

	assert.Equal(t, event.EndOfTime, h.End())
	assert.True(t, h.Destroyed())
	assert.ErrorIs(t, h.Append(mustEvent(t, "o", 30, intp(1))), ErrDestroyed)

	ok, err := h.CompareAndAppend(h.LastEvent(), mustEvent(t, "o", 30, intp(1)))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestPreviousTransitions_IsStateHistoryMinusFinal(t *testing.T) {
	h := New(mustEvent(t, "o", 0, intp(0)))
	require.NoError(t, h.Append(mustEvent(t, "o", 10, intp(1))))
	require.NoError(t, h.Append(mustEvent(t, "o", 15, intp(2))))

	all := h.StateHistory().Transitions()
	prev := h.PreviousTransitions()
	require.Len(t, all, 3)
	require.Len(t, prev, 2)
	for i, ts := range prev {
		assert.Equal(t, all[i].When, ts.When)
		assert.Equal(t, *all[i].State, *ts.State)
	}
	assert.Equal(t, h.LastEvent().When(), all[2].When)
}

func TestReadAccessors_Idempotent(t *testing.T) {
	h := New(mustEvent(t, "o", 0, intp(0)))
	require.NoError(t, h.Append(mustEvent(t, "o", 10, intp(1))))

	assert.Equal(t, h.End(), h.End())
	assert.True(t, h.LastEvent().Equal(h.LastEvent()))
	assert.Equal(t, h.PreviousTransitions(), h.PreviousTransitions())
	assert.True(t, h.StateHistory().Equal(h.StateHistory()))
}

func TestCompareAndAppend_Semantics(t *testing.T) {
	h := New(mustEvent(t, "o", 0, intp(0)))
	last := h.LastEvent()
	next := mustEvent(t, "o", 10, intp(1))

	// A value-equal copy of the last event matches; pointer identity is
	// irrelevant.
	expected := mustEvent(t, "o", 0, intp(0))
	ok, err := h.CompareAndAppend(expected, next)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, h.LastEvent().Equal(next))

	// Stale expectation fails and leaves the history completely unchanged.
	object, start := h.Object(), h.Start()
	before := h.StateHistory()
	ok, err = h.CompareAndAppend(last, mustEvent(t, "o", 20, intp(2)))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, object, h.Object())
	assert.Equal(t, start, h.Start())
	assert.True(t, before.Equal(h.StateHistory()))
}

func TestCompareAndAppend_ConcurrentWriters(t *testing.T) {
	h := New(mustEvent(t, "o", 0, intp(0)))

	// Many writers race through the optimistic retry loop; each commits
	// exactly one increment.
	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				for {
					last := h.LastEvent()
					next, err := event.New("o", last.When()+1, intp(*last.State()+1), nil, nil)
					if err != nil {
						t.Error(err)
						return
					}
					ok, err := h.CompareAndAppend(last, next)
					if err != nil {
						t.Error(err)
						return
					}
					if ok {
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, event.Time(writers*perWriter), h.End())
	assert.Equal(t, int64(writers*perWriter), *h.LastEvent().State())
	assert.Len(t, h.PreviousTransitions(), writers*perWriter)
}

func TestReconstruct_RoundTrip(t *testing.T) {
	h := New(mustEvent(t, "o", 0, intp(0)))
	require.NoError(t, h.Append(mustEvent(t, "o", 10, intp(1))))
	require.NoError(t, h.Append(mustEvent(t, "o", 15, intp(2))))

	rebuilt, err := Reconstruct(h.PreviousTransitions(), h.LastEvent())
	require.NoError(t, err)

	assert.Equal(t, h.Object(), rebuilt.Object())
	assert.Equal(t, h.Start(), rebuilt.Start())
	assert.Equal(t, h.End(), rebuilt.End())
	assert.True(t, h.LastEvent().Equal(rebuilt.LastEvent()))
	assert.True(t, h.StateHistory().Equal(rebuilt.StateHistory()))

	// The rebuilt history extends normally.
	require.NoError(t, rebuilt.Append(mustEvent(t, "o", 20, intp(3))))
	assert.Equal(t, event.Time(20), rebuilt.End())
}

func TestReconstruct_Invalid(t *testing.T) {
	last := mustEvent(t, "o", 10, intp(1))

	_, err := Reconstruct([]event.TimestampedState[int64]{{When: 0, State: nil}}, last)
	assert.ErrorIs(t, err, ErrBadReconstruction)

	_, err = Reconstruct([]event.TimestampedState[int64]{
		{When: 5, State: intp(0)},
		{When: 5, State: intp(1)},
	}, last)
	assert.ErrorIs(t, err, ErrBadReconstruction)

	_, err = Reconstruct([]event.TimestampedState[int64]{{When: 10, State: intp(0)}}, last)
	assert.ErrorIs(t, err, ErrBadReconstruction)
}

func TestAppend_LongSequence(t *testing.T) {
	clock := testutil.NewTimeSource(7)
	h := New(mustEvent(t, "o", clock.Next(), intp(0)))

	const n = 200
	for i := 1; i <= n; i++ {
		require.NoError(t, h.Append(mustEvent(t, "o", clock.Next(), intp(int64(i)))))
	}

	assert.Equal(t, clock.Current(), h.End())
	assert.Len(t, h.PreviousTransitions(), n)
	sf := h.StateHistory()
	assert.Equal(t, n+1, sf.Len())
	// Step-function lookups agree with the appended sequence.
	assert.Equal(t, int64(0), *sf.At(7))
	assert.Equal(t, int64(1), *sf.At(14))
	assert.Equal(t, int64(n), *sf.At(clock.Current()))
}
