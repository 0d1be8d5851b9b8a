package scenario

import (
	"fmt"

	"github.com/rkallos/timeloom/internal/event"
	"github.com/rkallos/timeloom/internal/universe"
)

// IDGenerator names children created by spawn rules.
type IDGenerator interface {
	NewID() event.ObjectID
}

// Build compiles the scenario into a populated universe. Child objects
// created by spawn rules are named by gen; pass a fixed generator for
// reproducible runs.
func (s *Scenario) Build(gen IDGenerator) (*universe.Universe[int64], error) {
	u := universe.New[int64]()
	for _, obj := range s.Objects {
		rule, err := compileRule(obj, gen)
		if err != nil {
			return nil, fmt.Errorf("scenario: object %q: %w", obj.ID, err)
		}
		state := obj.State
		genesis, err := event.New(event.ObjectID(obj.ID), event.Time(obj.Start), &state, nil, rule)
		if err != nil {
			return nil, fmt.Errorf("scenario: object %q: genesis: %w", obj.ID, err)
		}
		if _, err := u.AddObject(genesis); err != nil {
			return nil, fmt.Errorf("scenario: object %q: %w", obj.ID, err)
		}
	}
	return u, nil
}

func compileRule(obj ObjectDef, gen IDGenerator) (event.Advance[int64], error) {
	switch obj.Rule.Kind {
	case "counter":
		return counterRule(obj.Rule), nil
	case "relay":
		return relayRule(obj.Rule), nil
	case "spawn":
		if gen == nil {
			return nil, fmt.Errorf("spawn rule requires an id generator")
		}
		return spawnRule(obj, gen), nil
	default:
		return nil, fmt.Errorf("unknown rule kind %q", obj.Rule.Kind)
	}
}

// depTimes maps each dependency to its read time for a transition at next.
func depTimes(defs []DepDef, next event.Time) map[event.ObjectID]event.Time {
	if len(defs) == 0 {
		return nil
	}
	deps := make(map[event.ObjectID]event.Time, len(defs))
	for _, d := range defs {
		deps[event.ObjectID(d.Object)] = next - event.Time(d.Lag)
	}
	return deps
}

// depSum totals the dependency states, treating objects that do not yet
// exist at the read time as zero.
func depSum(states map[event.ObjectID]*int64) int64 {
	var sum int64
	for _, s := range states {
		if s != nil {
			sum += *s
		}
	}
	return sum
}

func destructionAt(obj event.ObjectID, at event.Time) map[event.ObjectID]*event.Event[int64] {
	return map[event.ObjectID]*event.Event[int64]{obj: event.NewDestruction[int64](obj, at)}
}

// counterRule grows the state by increment plus the dependency sum on every
// transition.
func counterRule(def RuleDef) event.Advance[int64] {
	period := event.Time(def.Period)
	destroyAt := event.Time(def.DestroyAt)
	var rule event.Advance[int64]
	rule = func(e *event.Event[int64], deps map[event.ObjectID]*int64) (map[event.ObjectID]*event.Event[int64], error) {
		next := e.When() + period
		if destroyAt != 0 && next >= destroyAt {
			return destructionAt(e.Object(), destroyAt), nil
		}
		state := *e.State() + def.Increment + depSum(deps)
		succ, err := event.New(e.Object(), next, &state, depTimes(def.Depends, next), rule)
		if err != nil {
			return nil, err
		}
		return map[event.ObjectID]*event.Event[int64]{e.Object(): succ}, nil
	}
	return rule
}

// relayRule replaces the state with the dependency sum plus increment on
// every transition.
func relayRule(def RuleDef) event.Advance[int64] {
	period := event.Time(def.Period)
	destroyAt := event.Time(def.DestroyAt)
	var rule event.Advance[int64]
	rule = func(e *event.Event[int64], deps map[event.ObjectID]*int64) (map[event.ObjectID]*event.Event[int64], error) {
		next := e.When() + period
		if destroyAt != 0 && next >= destroyAt {
			return destructionAt(e.Object(), destroyAt), nil
		}
		state := depSum(deps) + def.Increment
		succ, err := event.New(e.Object(), next, &state, depTimes(def.Depends, next), rule)
		if err != nil {
			return nil, err
		}
		return map[event.ObjectID]*event.Event[int64]{e.Object(): succ}, nil
	}
	return rule
}

// spawnRule behaves like a counter whose state counts its children. Each
// transition creates one child, a plain counter starting at child_state,
// until max_children have been created; afterwards the parent keeps ticking
// without spawning.
func spawnRule(obj ObjectDef, gen IDGenerator) event.Advance[int64] {
	def := obj.Rule
	period := event.Time(def.Period)
	destroyAt := event.Time(def.DestroyAt)
	childRule := counterRule(RuleDef{Kind: "counter", Period: def.Period, Increment: 1})
	var rule event.Advance[int64]
	rule = func(e *event.Event[int64], deps map[event.ObjectID]*int64) (map[event.ObjectID]*event.Event[int64], error) {
		next := e.When() + period
		if destroyAt != 0 && next >= destroyAt {
			return destructionAt(e.Object(), destroyAt), nil
		}
		spawned := *e.State()
		out := make(map[event.ObjectID]*event.Event[int64], 2)
		if spawned < int64(def.MaxChildren) {
			spawned++
			childState := def.ChildState
			child, err := event.New(gen.NewID(), next, &childState, nil, childRule)
			if err != nil {
				return nil, err
			}
			out[child.Object()] = child
		}
		succ, err := event.New(e.Object(), next, &spawned, depTimes(def.Depends, next), rule)
		if err != nil {
			return nil, err
		}
		out[e.Object()] = succ
		return out, nil
	}
	return rule
}
