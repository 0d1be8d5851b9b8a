package harness

import (
	"sort"

	"github.com/rkallos/timeloom/internal/scenario"
	"github.com/rkallos/timeloom/internal/universe"
)

// TraceEvent is one committed transition in a run's trace. State is nil for
// destruction events.
type TraceEvent struct {
	Object    string `json:"object"`
	When      int64  `json:"when"`
	State     *int64 `json:"state"`
	Destroyed bool   `json:"destroyed,omitempty"`
}

// Result is the outcome of one scenario run.
type Result struct {
	Scenario string       `json:"scenario"`
	Horizon  int64        `json:"horizon"`
	Objects  int          `json:"objects"`
	Trace    []TraceEvent `json:"trace"`
}

// Collect extracts every transition of every object. Ordering is total and
// deterministic: ascending time, ties broken by object id.
func Collect(s *scenario.Scenario, u *universe.Universe[int64]) *Result {
	var trace []TraceEvent
	for _, id := range u.Objects() {
		h, ok := u.History(id)
		if !ok {
			continue
		}
		for _, ts := range h.PreviousTransitions() {
			trace = append(trace, TraceEvent{
				Object: string(id),
				When:   int64(ts.When),
				State:  ts.State,
			})
		}
		last := h.LastEvent()
		trace = append(trace, TraceEvent{
			Object:    string(id),
			When:      int64(last.When()),
			State:     last.State(),
			Destroyed: last.Destroyed(),
		})
	}
	sort.Slice(trace, func(i, j int) bool {
		if trace[i].When != trace[j].When {
			return trace[i].When < trace[j].When
		}
		return trace[i].Object < trace[j].Object
	})
	return &Result{
		Scenario: s.Name,
		Horizon:  s.Horizon,
		Objects:  u.Len(),
		Trace:    trace,
	}
}
