// Package testutil provides deterministic helpers for tests and the
// conformance harness: fixed object-id sequences and a resettable logical
// time source, so that identical scenarios produce byte-identical traces.
package testutil

import (
	"fmt"
	"sync"

	"github.com/rkallos/timeloom/internal/event"
)

// IDGenerator mints object ids for objects created during a run.
// Implemented by UUIDGenerator (production) and FixedIDGenerator (tests).
type IDGenerator interface {
	NewID() event.ObjectID
}

// FixedIDGenerator returns predetermined object ids in order.
//
// This enables deterministic execution and golden trace comparison: the same
// scenario with the same id sequence produces byte-identical traces.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []event.ObjectID
	idx int
}

// NewFixedIDGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedIDGenerator("obj-1", "obj-2")
//	gen.NewID() // "obj-1"
//	gen.NewID() // "obj-2"
//	gen.NewID() // "spawn-3" (deterministic fallback)
func NewFixedIDGenerator(ids ...event.ObjectID) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids}
}

// NewID returns the next predetermined id. When the fixed list is exhausted
// it falls back to a deterministic "spawn-N" sequence rather than panicking,
// so scenarios may spawn more objects than they bothered to name.
func (g *FixedIDGenerator) NewID() event.ObjectID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idx++
	if g.idx <= len(g.ids) {
		return g.ids[g.idx-1]
	}
	return event.ObjectID(fmt.Sprintf("spawn-%d", g.idx))
}
