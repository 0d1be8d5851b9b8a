package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/rkallos/timeloom/internal/scenario"
	"github.com/rkallos/timeloom/internal/wire"
)

// Canonical serializes the result with canonical JSON, the byte form golden
// files are compared against.
func (r *Result) Canonical() ([]byte, error) {
	return wire.MarshalCanonical(r.toCanonicalMap())
}

// toCanonicalMap converts the result to primitives MarshalCanonical accepts.
func (r *Result) toCanonicalMap() map[string]any {
	trace := make([]any, len(r.Trace))
	for i, ev := range r.Trace {
		m := map[string]any{
			"object": ev.Object,
			"when":   ev.When,
		}
		if ev.State != nil {
			m["state"] = *ev.State
		} else {
			m["state"] = nil
		}
		if ev.Destroyed {
			m["destroyed"] = true
		}
		trace[i] = m
	}
	return map[string]any{
		"scenario_name": r.Scenario,
		"horizon":       r.Horizon,
		"trace":         trace,
	}
}

// RunWithGolden runs the scenario and compares its canonical trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, h *Harness, s *scenario.Scenario) {
	t.Helper()

	result, err := h.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run %s: %v", s.Name, err)
	}
	AssertGolden(t, result)
}

// AssertGolden compares an already-collected result against its golden file.
func AssertGolden(t *testing.T, result *Result) {
	t.Helper()

	data, err := result.Canonical()
	if err != nil {
		t.Fatalf("canonicalize trace of %s: %v", result.Scenario, err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, result.Scenario, data)
}
