package event

import "math"

// ObjectID names a simulated object. IDs are opaque to the engine; the
// scenario layer uses human-readable names and UUIDv7 strings for spawned
// objects.
type ObjectID string

// Time is a logical simulation timestamp. Ordering is by integer value;
// wall-clock time is never used for ordering.
type Time int64

// EndOfTime is the permanent, maximal timestamp. A destroyed object's
// history ends at EndOfTime: no later transition can ever exist.
const EndOfTime Time = math.MaxInt64

// Identifier names a unique point in an object's history.
type Identifier struct {
	Object ObjectID `json:"object"`
	When   Time     `json:"when"`
}

// TimestampedState is the projection of a transition to (when, state).
// A nil State marks destruction (or, before an object's start, absence).
type TimestampedState[S comparable] struct {
	When  Time
	State *S
}

// StateEqual reports whether two nullable states hold the same value.
func StateEqual[S comparable](a, b *S) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
