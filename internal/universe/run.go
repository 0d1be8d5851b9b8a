package universe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rkallos/timeloom/internal/event"
	"github.com/rkallos/timeloom/internal/history"
)

// DefaultMaxSteps is the default per-object step quota for a run. It guards
// against runaway objects whose rules never terminate and whose horizon is
// far away.
const DefaultMaxSteps = 1000

type runConfig struct {
	horizon  event.Time
	maxSteps int
	logger   *slog.Logger
}

// RunOption configures a drive-loop run.
type RunOption func(*runConfig)

// WithHorizon stops advancing an object once its frontier reaches t. Events
// already computed may land beyond the horizon; they are committed, but the
// object is not advanced further.
func WithHorizon(t event.Time) RunOption {
	return func(c *runConfig) { c.horizon = t }
}

// WithMaxSteps sets the per-object step quota. Zero or negative means
// unlimited.
func WithMaxSteps(n int) RunOption {
	return func(c *runConfig) { c.maxSteps = n }
}

// WithLogger sets the logger for drive-loop progress.
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) { c.logger = logger }
}

// runner tracks the live workers of one Run call. Worker accounting uses a
// condition variable rather than a WaitGroup so that spawn-after-quiesce is
// detected instead of racing: cascades spawned by a live worker are always
// admitted, late external additions are not.
type runner[S comparable] struct {
	u      *Universe[S]
	cfg    runConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	active  int
	stopped bool
	err     error
}

// Run drives the simulation until every object is destroyed or has reached
// the horizon, the per-object quota is exceeded, or ctx is done. One worker
// goroutine per object; objects created during the run (by successor
// computations or by concurrent AddObject calls) are picked up dynamically.
//
// Only one Run may be active on a universe at a time.
func (u *Universe[S]) Run(ctx context.Context, opts ...RunOption) error {
	cfg := runConfig{
		horizon:  event.EndOfTime,
		maxSteps: DefaultMaxSteps,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := &runner[S]{u: u, cfg: cfg, ctx: rctx, cancel: cancel}
	r.cond = sync.NewCond(&r.mu)

	u.mu.Lock()
	if u.runner != nil {
		u.mu.Unlock()
		return fmt.Errorf("universe: run already active")
	}
	u.runner = r
	// The initial snapshot is taken in the same critical section that
	// publishes the runner. A concurrent AddObject is either included in
	// the snapshot or spawns through the runner itself, never both, so
	// each object gets exactly one worker.
	initial := make([]*history.History[S], 0, len(u.histories))
	for _, h := range u.histories {
		initial = append(initial, h)
	}
	u.mu.Unlock()

	for _, h := range initial {
		r.spawn(h)
	}

	r.mu.Lock()
	for r.active > 0 {
		r.cond.Wait()
	}
	r.stopped = true
	err := r.err
	r.mu.Unlock()

	u.mu.Lock()
	u.runner = nil
	u.mu.Unlock()

	if err != nil {
		return err
	}
	return ctx.Err()
}

// spawn starts a worker for h unless the run has already quiesced.
func (r *runner[S]) spawn(h *history.History[S]) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.active++
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			r.active--
			if r.active == 0 {
				r.cond.Broadcast()
			}
			r.mu.Unlock()
		}()
		r.drive(h)
	}()
}

// fail records the first error and cancels the run.
func (r *runner[S]) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
	r.cancel()
}

// drive advances one object until it is destroyed, reaches the horizon,
// exhausts its quota, or the run is cancelled.
func (r *runner[S]) drive(h *history.History[S]) {
	logger := r.cfg.logger.With("object", string(h.Object()))
	steps := 0
	for {
		if r.ctx.Err() != nil {
			return
		}
		last := h.LastEvent()
		if last.Destroyed() {
			logger.Debug("object destroyed", "when", int64(last.When()))
			return
		}
		if last.When() >= r.cfg.horizon {
			logger.Debug("object reached horizon", "frontier", int64(last.When()))
			return
		}
		if r.cfg.maxSteps > 0 && steps >= r.cfg.maxSteps {
			r.fail(&QuotaError{Object: h.Object(), Steps: steps})
			return
		}
		if err := r.u.advanceOnce(r.ctx, h); err != nil {
			if r.ctx.Err() == nil {
				r.fail(err)
			}
			return
		}
		steps++
		logger.Debug("object advanced", "frontier", int64(h.End()), "steps", steps)
	}
}

// Advance performs one gather/compute/commit cycle for id, retrying its own
// compare-and-append until it wins. Exposed for applications that drive
// objects themselves instead of using Run.
func (u *Universe[S]) Advance(ctx context.Context, id event.ObjectID) error {
	h, ok := u.History(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	return u.advanceOnce(ctx, h)
}

// advanceOnce is one optimistic-concurrency cycle: read the last event,
// gather dependency states, compute successors, commit. A lost race on the
// object's own history re-reads and recomputes; contract violations and rule
// errors surface immediately.
func (u *Universe[S]) advanceOnce(ctx context.Context, h *history.History[S]) error {
	for {
		last := h.LastEvent()
		if last.Destroyed() {
			return fmt.Errorf("%w: %s", history.ErrDestroyed, h.Object())
		}

		deps, err := u.gather(ctx, last)
		if err != nil {
			return err
		}
		succ, err := last.ComputeNext(deps)
		if err != nil {
			return fmt.Errorf("universe: advance %s: %w", h.Object(), err)
		}
		own, ok := succ[h.Object()]
		if !ok {
			return fmt.Errorf("%w: %s at %d", ErrNoContinuation, h.Object(), last.When())
		}

		// Commit creations and cross-object events before the own
		// continuation, so that anything the continuation's dependencies
		// refer to is already admitted.
		for id, e := range succ {
			if id != e.Object() {
				return fmt.Errorf("universe: advance %s: successor keyed %s but belongs to %s", h.Object(), id, e.Object())
			}
			if id == h.Object() {
				continue
			}
			if err := u.commitOther(e); err != nil {
				return err
			}
		}

		committed, err := h.CompareAndAppend(last, own)
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
		// Lost the race: another writer advanced this object. Re-read the
		// now-current last event and recompute.
	}
}

// commitOther commits a successor event aimed at an object other than the
// one being advanced. Unseen ids are registered via AddObject; events for
// existing objects are committed with compare-and-append against that
// object's current last event. A lost race is dropped: the owning object has
// already moved past the proposed transition.
func (u *Universe[S]) commitOther(e *event.Event[S]) error {
	other, known := u.History(e.Object())
	if !known {
		_, err := u.AddObject(e)
		if err == nil || IsObjectExists(err) {
			// A concurrent creator won; their genesis stands.
			return nil
		}
		return err
	}
	if _, err := other.CompareAndAppend(other.LastEvent(), e); err != nil {
		return err
	}
	return nil
}

// gather resolves the states of every dependency of last, each evaluated at
// its declared time. Provisional dependencies suspend the caller until a
// later append makes the answer reliable; dependency times are strictly in
// the past, which breaks potential wait cycles across objects.
func (u *Universe[S]) gather(ctx context.Context, last *event.Event[S]) (map[event.ObjectID]*S, error) {
	deps := last.Dependencies()
	if len(deps) == 0 {
		return nil, nil
	}
	out := make(map[event.ObjectID]*S, len(deps))
	for obj, t := range deps {
		dh, ok := u.Reader(obj)
		if !ok {
			return nil, fmt.Errorf("%w: dependency %s of %s", ErrUnknownObject, obj, last.Object())
		}
		state, err := readReliable(ctx, dh, t)
		if err != nil {
			return nil, err
		}
		out[obj] = state
	}
	return out, nil
}

// readReliable blocks until the state of h at time t is reliable.
func readReliable[S comparable](ctx context.Context, h history.Reader[S], t event.Time) (*S, error) {
	for r := range h.ObserveState(ctx, t) {
		if r.Reliable {
			return r.State, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("universe: state query for %s at %d ended without a reliable answer", h.Object(), t)
}
