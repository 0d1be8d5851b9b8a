package history

import "errors"

// Append contract violations. These indicate defects in the calling code;
// the engine never catches or retries them.
var (
	// ErrWrongObject indicates an append of an event belonging to a
	// different object.
	ErrWrongObject = errors.New("history: event belongs to a different object")

	// ErrNonMonotonic indicates an append at or before the current frontier.
	ErrNonMonotonic = errors.New("history: event time not after last event")

	// ErrDestroyed indicates an append to a destroyed object's history.
	ErrDestroyed = errors.New("history: object is destroyed")

	// ErrBadReconstruction indicates transitions that do not form a valid
	// history (unordered times, null past states, or a mismatched last event).
	ErrBadReconstruction = errors.New("history: invalid reconstruction input")
)
