package testutil

import (
	"github.com/google/uuid"

	"github.com/rkallos/timeloom/internal/event"
)

// UUIDGenerator mints time-sortable UUIDv7 object ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, making ids
// sortable by creation time, which is helpful when eyeballing traces.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDGenerator struct{}

// NewID returns a fresh UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDGenerator) NewID() event.ObjectID {
	return event.ObjectID(uuid.Must(uuid.NewV7()).String())
}
