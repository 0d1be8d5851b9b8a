// Package harness runs scenarios end to end and captures deterministic
// traces for golden-file comparison.
//
// A trace is the union of every object's transitions after the run, sorted
// by (when, object). With a fixed id generator the same scenario always
// produces byte-identical canonical trace output, which is what the golden
// files assert.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rkallos/timeloom/internal/event"
	"github.com/rkallos/timeloom/internal/scenario"
	"github.com/rkallos/timeloom/internal/testutil"
	"github.com/rkallos/timeloom/internal/universe"
)

// Harness executes scenarios with deterministic object ids.
type Harness struct {
	logger *slog.Logger
	newGen func() scenario.IDGenerator
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger passed to each run.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) { h.logger = logger }
}

// WithIDGenerators sets the factory minting one id generator per run. Each
// run gets a fresh generator so concurrent scenarios stay deterministic.
func WithIDGenerators(newGen func() scenario.IDGenerator) Option {
	return func(h *Harness) { h.newGen = newGen }
}

// New creates a harness. By default runs use a fixed id generator (children
// are named spawn-1, spawn-2, ...) and logging is discarded.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newGen: func() scenario.IDGenerator { return testutil.NewFixedIDGenerator() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run builds the scenario's universe, drives it to the scenario horizon and
// returns the collected trace.
func (h *Harness) Run(ctx context.Context, s *scenario.Scenario) (*Result, error) {
	u, err := s.Build(h.newGen())
	if err != nil {
		return nil, err
	}

	logger := h.logger.With("scenario", s.Name)
	logger.Info("scenario starting", "objects", u.Len(), "horizon", s.Horizon)
	if err := u.Run(ctx,
		universe.WithHorizon(event.Time(s.Horizon)),
		universe.WithLogger(logger),
	); err != nil {
		return nil, fmt.Errorf("harness: run %s: %w", s.Name, err)
	}

	result := Collect(s, u)
	logger.Info("scenario finished", "objects", result.Objects, "events", len(result.Trace))
	return result, nil
}

// RunAll executes the scenarios concurrently, one universe each, and returns
// results in input order. The first failure cancels the remaining runs.
func (h *Harness) RunAll(ctx context.Context, scenarios []*scenario.Scenario) ([]*Result, error) {
	results := make([]*Result, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range scenarios {
		i, s := i, s
		g.Go(func() error {
			r, err := h.Run(gctx, s)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
