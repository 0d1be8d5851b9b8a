package universe

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rkallos/timeloom/internal/event"
	"github.com/rkallos/timeloom/internal/history"
)

// Universe owns the histories of all known objects. Histories are
// independently synchronized; the universe lock guards only the registry.
type Universe[S comparable] struct {
	mu        sync.RWMutex
	histories map[event.ObjectID]*history.History[S]

	// runner is non-nil while Run is active, so that objects added
	// mid-run are picked up by the drive loop.
	runner *runner[S]
}

// New creates an empty universe.
func New[S comparable]() *Universe[S] {
	return &Universe[S]{histories: make(map[event.ObjectID]*history.History[S])}
}

// AddObject admits a brand-new object, constructing a fresh history from its
// genesis event. This is the only entry point for introducing objects, used
// both by bootstrap code and by the drive loop when a successor computation
// yields a creation event for an unseen id.
func (u *Universe[S]) AddObject(genesis *event.Event[S]) (*history.History[S], error) {
	if genesis.Object() == "" {
		return nil, fmt.Errorf("universe: empty object id")
	}
	u.mu.Lock()
	if _, ok := u.histories[genesis.Object()]; ok {
		u.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrObjectExists, genesis.Object())
	}
	h := history.New(genesis)
	u.histories[genesis.Object()] = h
	r := u.runner
	u.mu.Unlock()

	if r != nil {
		r.spawn(h)
	}
	return h, nil
}

// Attach admits an object with an already-reconstructed history, for
// resumption from a snapshot.
func (u *Universe[S]) Attach(h *history.History[S]) error {
	u.mu.Lock()
	if _, ok := u.histories[h.Object()]; ok {
		u.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrObjectExists, h.Object())
	}
	u.histories[h.Object()] = h
	r := u.runner
	u.mu.Unlock()

	if r != nil {
		r.spawn(h)
	}
	return nil
}

// History returns the history of id, if admitted.
func (u *Universe[S]) History(id event.ObjectID) (*history.History[S], bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	h, ok := u.histories[id]
	return h, ok
}

// Reader returns the read-only contract for id's history.
func (u *Universe[S]) Reader(id event.ObjectID) (history.Reader[S], bool) {
	return u.History(id)
}

// Objects returns the ids of all admitted objects, sorted for determinism.
func (u *Universe[S]) Objects() []event.ObjectID {
	u.mu.RLock()
	ids := make([]event.ObjectID, 0, len(u.histories))
	for id := range u.histories {
		ids = append(ids, id)
	}
	u.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of admitted objects.
func (u *Universe[S]) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.histories)
}
