// Package event defines the identity and event model for the timeloom engine.
//
// An Event records that an object transitioned to a state at a point in
// logical time, depending on the states of other named objects at named
// earlier times. Events are immutable values: once constructed they are
// freely shareable across goroutines without copying or locking.
//
// Causality is enforced at construction:
//   - every dependency time is strictly earlier than the event's own time
//   - an event never depends on its own object
//   - a destruction event (nil state) carries no dependencies
//
// The sole behavioral operation, ComputeNext, is the extension point through
// which application-specific simulation rules enter the engine. The engine
// never inspects the State type parameter.
package event
