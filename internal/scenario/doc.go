// Package scenario loads declarative simulation definitions.
//
// A scenario is a YAML file naming the objects of a universe: each object's
// genesis time and state, the rule its events advance by, the other objects
// those rules depend on (with a fixed lag), and how far the simulation runs.
// Files are validated against an embedded CUE schema before decoding, so
// malformed scenarios fail with positions instead of half-built universes.
//
// Three rule kinds cover the demo simulations:
//
//   - counter: every period the state grows by increment plus the sum of the
//     dependency states, each read lag ticks before the transition.
//   - relay: every period the state is replaced by the dependency sum plus
//     increment.
//   - spawn: a counter that additionally creates a child object each period,
//     up to max_children, exercising dynamic object admission.
//
// Build compiles the definitions into advance rules and a populated
// universe. Built rules are deterministic: the same scenario always produces
// the same histories.
package scenario
