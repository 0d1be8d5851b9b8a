// Package universe owns the set of simulated objects and drives the
// simulation forward.
//
// A Universe maps object ids to their modifiable histories. The registry
// grows monotonically: objects are added, never structurally removed;
// destruction is recorded as a terminal transition in the object's history,
// not a deletion.
//
// The drive loop runs one worker per object with no global lock. A worker
// reads its object's last event, gathers the states of that event's
// dependencies (suspending on another object's history while the answer is
// provisional), invokes the event's successor computation, and commits the
// results with compare-and-append, retrying on conflict. Progress is
// guaranteed because dependency times are strictly in the past: the object
// with the globally minimal frontier always has only reliable dependencies.
package universe
