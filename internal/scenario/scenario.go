package scenario

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Scenario defines a simulation: the bootstrap objects and how far to run.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Horizon is the logical time objects are advanced until.
	Horizon int64 `yaml:"horizon"`

	// Objects are the bootstrap objects of the universe.
	Objects []ObjectDef `yaml:"objects"`
}

// ObjectDef defines one bootstrap object: its genesis and its rule.
type ObjectDef struct {
	ID    string  `yaml:"id"`
	Start int64   `yaml:"start"`
	State int64   `yaml:"state"`
	Rule  RuleDef `yaml:"rule"`
}

// RuleDef defines how an object's events compute their successors.
type RuleDef struct {
	// Kind is one of "counter", "relay" or "spawn".
	Kind string `yaml:"kind"`

	// Period is the gap between transitions.
	Period int64 `yaml:"period"`

	// Increment is added on every transition.
	Increment int64 `yaml:"increment,omitempty"`

	// Depends names the dependency objects and their lags.
	Depends []DepDef `yaml:"depends,omitempty"`

	// DestroyAt ends the object with a destruction event; 0 means the
	// object lives until the horizon.
	DestroyAt int64 `yaml:"destroy_at,omitempty"`

	// ChildState and MaxChildren configure spawn rules.
	ChildState  int64 `yaml:"child_state,omitempty"`
	MaxChildren int   `yaml:"max_children,omitempty"`
}

// DepDef names one causal dependency: the object and how many ticks before
// each transition its state is read.
type DepDef struct {
	Object string `yaml:"object"`
	Lag    int64  `yaml:"lag"`
}

// Load reads, validates and decodes a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse validates raw YAML against the embedded CUE schema and decodes it.
// The filename is used for error positions only.
func Parse(filename string, data []byte) (*Scenario, error) {
	if err := validate(filename, data); err != nil {
		return nil, err
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scenario: decode %s: %w", filename, err)
	}
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", filename, err)
	}
	return &s, nil
}

// validate unifies the YAML document with the #Scenario schema.
func validate(filename string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("scenario: compile schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("scenario: parse %s: %w", filename, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("scenario: build %s: %w", filename, err)
	}

	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("scenario: schema lookup: %w", err)
	}
	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("scenario: %s does not satisfy schema: %w", filename, err)
	}
	return nil
}

// check enforces the cross-object constraints the schema cannot express.
func (s *Scenario) check() error {
	seen := make(map[string]bool, len(s.Objects))
	for _, obj := range s.Objects {
		if seen[obj.ID] {
			return fmt.Errorf("duplicate object id %q", obj.ID)
		}
		seen[obj.ID] = true
	}
	for _, obj := range s.Objects {
		if obj.Rule.DestroyAt != 0 && obj.Rule.DestroyAt <= obj.Start {
			return fmt.Errorf("object %q: destroy_at %d not after start %d", obj.ID, obj.Rule.DestroyAt, obj.Start)
		}
		for _, dep := range obj.Rule.Depends {
			if dep.Object == obj.ID {
				return fmt.Errorf("object %q: depends on itself", obj.ID)
			}
			if !seen[dep.Object] {
				return fmt.Errorf("object %q: unknown dependency %q", obj.ID, dep.Object)
			}
		}
	}
	return nil
}
