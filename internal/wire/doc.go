// Package wire implements the structural serialization contract of the
// engine: JSON forms for events and object histories that round-trip to
// identical object, start, end, last event and state history.
//
// Alongside the plain JSON forms, the package produces canonical JSON
// (RFC 8785 flavor: NFC-normalized strings, UTF-16 key ordering, no HTML
// escaping, no floats) for content-addressed hashing and golden-file
// comparison. Canonical output for the same history is byte-identical across
// processes and replays.
package wire
