package history

import (
	"context"
	"sync"

	"github.com/rkallos/timeloom/internal/event"
)

// Reading is one answer to a point-in-time state query. State is nil before
// the object's start and at or after its destruction. A provisional reading
// may be revised by future appends; a reliable one never will.
type Reading[S comparable] struct {
	State    *S
	Reliable bool
}

// subscriber is one observer's cursor into the append sequence: an unbounded
// pending queue fed by appendLocked and drained by the observer's dispatch
// goroutine. The queue is unbounded so that appends never block on slow
// consumers; backpressure applies only on the subscriber's own out channel.
type subscriber[S comparable] struct {
	mu      sync.Mutex
	pending []*event.Event[S]
	signal  chan struct{} // buffered size 1, coalesces availability signals
}

func newSubscriber[S comparable]() *subscriber[S] {
	return &subscriber[S]{signal: make(chan struct{}, 1)}
}

// push enqueues an appended event. Called with the history lock held; must
// not block.
func (s *subscriber[S]) push(e *event.Event[S]) {
	s.mu.Lock()
	s.pending = append(s.pending, e)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// next blocks until an event is available or ctx is done.
func (s *subscriber[S]) next(ctx context.Context) (*event.Event[S], bool) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			e := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return e, true
		}
		s.mu.Unlock()
		select {
		case <-s.signal:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// subscribe registers a new subscriber and captures the snapshot current at
// registration. Both happen under the history lock, so the snapshot and the
// subsequent queued appends form a gapless, duplicate-free sequence.
func (h *History[S]) subscribe() (*subscriber[S], *snapshot[S]) {
	sub := newSubscriber[S]()
	h.mu.Lock()
	snap := h.snap.Load()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub, snap
}

func (h *History[S]) unsubscribe(sub *subscriber[S]) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// ObserveEvents replays the current last event to the new subscriber and
// then pushes every subsequently appended event, in append order. The stream
// completes only after a destruction event is delivered; otherwise it stays
// open until ctx is done.
func (h *History[S]) ObserveEvents(ctx context.Context) <-chan *event.Event[S] {
	out := make(chan *event.Event[S])
	sub, snap := h.subscribe()
	go func() {
		defer close(out)
		defer h.unsubscribe(sub)
		cur := snap.last
		for {
			select {
			case out <- cur:
			case <-ctx.Done():
				return
			}
			if cur.Destroyed() {
				return
			}
			next, ok := sub.next(ctx)
			if !ok {
				return
			}
			cur = next
		}
	}()
	return out
}

// ObserveTransitions is ObserveEvents projected to (when, state) pairs, with
// the same delivery and completion rules.
func (h *History[S]) ObserveTransitions(ctx context.Context) <-chan event.TimestampedState[S] {
	out := make(chan event.TimestampedState[S])
	sub, snap := h.subscribe()
	go func() {
		defer close(out)
		defer h.unsubscribe(sub)
		cur := snap.last
		for {
			select {
			case out <- cur.Timestamped():
			case <-ctx.Done():
				return
			}
			if cur.Destroyed() {
				return
			}
			next, ok := sub.next(ctx)
			if !ok {
				return
			}
			cur = next
		}
	}()
	return out
}

// ObserveState answers "what state holds at time t" as a stream.
//
// Before the object's start the answer is a reliable nil, emitted once. While
// t lies at or beyond the known frontier the answer is provisional: it is
// re-emitted (possibly unchanged) each time an append moves the frontier.
// Once an append makes t strictly earlier than the frontier, or a destruction
// fixes the state permanently, the final answer is emitted as reliable and
// the stream completes.
func (h *History[S]) ObserveState(ctx context.Context, t event.Time) <-chan Reading[S] {
	out := make(chan Reading[S])
	sub, snap := h.subscribe()
	go func() {
		defer close(out)
		defer h.unsubscribe(sub)

		if t < h.start {
			select {
			case out <- Reading[S]{State: nil, Reliable: true}:
			case <-ctx.Done():
			}
			return
		}

		// The subscriber's local view: transitions known at subscription,
		// extended per queued append. Kept local so each emission reflects
		// exactly one frontier position, in order.
		transitions := snap.all()
		end := snap.end()
		for {
			reliable := t < end
			reading := Reading[S]{State: NewStateFunction(transitions).At(t), Reliable: reliable}
			select {
			case out <- reading:
			case <-ctx.Done():
				return
			}
			if reliable {
				return
			}
			e, ok := sub.next(ctx)
			if !ok {
				return
			}
			transitions = append(transitions, e.Timestamped())
			if e.Destroyed() {
				end = event.EndOfTime
			} else {
				end = e.When()
			}
		}
	}()
	return out
}
