// Package history implements the per-object history store of the timeloom
// engine.
//
// A History is an append-only record of one object's transitions: an ordered
// set of past (time, state) pairs plus the current last event, which is the
// only part of the history that can still change. Reads are lock-free against
// an immutable snapshot; mutation goes through Append (single-writer) or
// CompareAndAppend (optimistic concurrency, the safe multi-writer primitive).
//
// Three reactive query streams observe a history: ObserveEvents,
// ObserveTransitions and ObserveState. Each subscriber owns an independent
// unbounded pending queue and a dispatch goroutine, so a slow consumer delays
// only itself, never appends and never other subscribers. Delivery is in append
// order per subscriber; cancellation is per-subscriber via context.
//
// ObserveState answers a point-in-time query as a stream: the answer is
// provisional while the queried instant lies at or beyond the known frontier,
// and is re-emitted on every append until a later transition makes it
// reliable, at which point the stream completes.
package history
