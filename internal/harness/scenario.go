// Package harness runs declarative YAML scenarios against the full
// classify-apply-publish pipeline using the in-memory network, and compares
// the resulting event traces against golden files.
package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario. Scenarios seed a route
// network, replay a sequence of edit-log rows through the dispatcher, and
// assert on the published events and final network state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tolerance overrides the coincidence tolerance. Defaults to 0.01.
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// Seed establishes committed network state before the first edit,
	// as if previous edits had been fully reconciled.
	Seed Seed `yaml:"seed,omitempty"`

	// Edits is the sequence of edit-log rows to replay, in order.
	Edits []EditStep `yaml:"edits"`

	// Assertions validate the published events and final state.
	// Supported types: events_order, event_count, node_count, segment_count
	Assertions []Assertion `yaml:"assertions"`
}

// Seed lists pre-existing entities.
type Seed struct {
	Nodes    []EntitySpec `yaml:"nodes,omitempty"`
	Segments []EntitySpec `yaml:"segments,omitempty"`
}

// EntitySpec describes a node or segment in scenario YAML. IDs are small
// integers mapped to deterministic mrids, so scenarios stay readable and
// golden traces stay stable.
type EntitySpec struct {
	// ID is the deterministic entity number (mapped via testutil.ID).
	ID int `yaml:"id"`

	// Coord is [x, y], for nodes.
	Coord []float64 `yaml:"coord,omitempty"`

	// Line is [[x, y], ...], for segments.
	Line [][]float64 `yaml:"line,omitempty"`

	// Deleted sets the marked-for-deletion flag.
	Deleted bool `yaml:"deleted,omitempty"`

	// User and App set edit provenance. App defaults to "QGIS".
	User string `yaml:"user,omitempty"`
	App  string `yaml:"app,omitempty"`
}

// EditStep represents one edit-log row.
type EditStep struct {
	// Entity is "node" or "segment".
	Entity string `yaml:"entity"`

	// Op is "created", "updated" or "deleted".
	Op string `yaml:"op"`

	// Before is the pre-edit image (required for deleted, optional for
	// updated).
	Before *EntitySpec `yaml:"before,omitempty"`

	// After is the post-edit image (required for created and updated).
	After *EntitySpec `yaml:"after,omitempty"`
}

// Assertion validates published events or final network state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "events_order": published event types appear in exactly this order
	// - "event_count":  an event type appears exactly N times
	// - "node_count":   the live network holds exactly N nodes
	// - "segment_count": the live network holds exactly N segments
	Type string `yaml:"type"`

	// Events is the full expected publication order (events_order).
	Events []string `yaml:"events,omitempty"`

	// Event is the event type to count (event_count).
	Event string `yaml:"event,omitempty"`

	// Count is the expected number (event_count, node_count, segment_count).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertEventsOrder  = "events_order"
	AssertEventCount   = "event_count"
	AssertNodeCount    = "node_count"
	AssertSegmentCount = "segment_count"
)

// LoadScenario reads and parses a scenario YAML file. Returns an error if
// the file doesn't exist, is malformed, contains unknown fields (typos),
// or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Edits) == 0 {
		return fmt.Errorf("edits list is required and must be non-empty")
	}

	for i, n := range s.Seed.Nodes {
		if err := validateNodeSpec(&n); err != nil {
			return fmt.Errorf("seed.nodes[%d]: %w", i, err)
		}
	}
	for i, seg := range s.Seed.Segments {
		if err := validateSegmentSpec(&seg); err != nil {
			return fmt.Errorf("seed.segments[%d]: %w", i, err)
		}
	}

	for i, step := range s.Edits {
		if err := validateEditStep(&step); err != nil {
			return fmt.Errorf("edits[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(&a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}

	return nil
}

func validateNodeSpec(e *EntitySpec) error {
	if e.ID <= 0 {
		return fmt.Errorf("id must be positive")
	}
	if len(e.Coord) != 2 {
		return fmt.Errorf("coord must be [x, y]")
	}
	return nil
}

func validateSegmentSpec(e *EntitySpec) error {
	if e.ID <= 0 {
		return fmt.Errorf("id must be positive")
	}
	if len(e.Line) < 2 {
		return fmt.Errorf("line needs at least two points")
	}
	for i, p := range e.Line {
		if len(p) != 2 {
			return fmt.Errorf("line[%d] must be [x, y]", i)
		}
	}
	return nil
}

func validateEditStep(step *EditStep) error {
	switch step.Entity {
	case "node", "segment":
	default:
		return fmt.Errorf("entity must be \"node\" or \"segment\", got %q", step.Entity)
	}

	validate := validateNodeSpec
	if step.Entity == "segment" {
		validate = validateSegmentSpec
	}

	switch step.Op {
	case "created", "updated":
		if step.After == nil {
			return fmt.Errorf("%s requires an after image", step.Op)
		}
		if err := validate(step.After); err != nil {
			return fmt.Errorf("after: %w", err)
		}
	case "deleted":
		if step.Before == nil {
			return fmt.Errorf("deleted requires a before image")
		}
		if err := validate(step.Before); err != nil {
			return fmt.Errorf("before: %w", err)
		}
	default:
		return fmt.Errorf("op must be created, updated or deleted, got %q", step.Op)
	}

	if step.Before != nil {
		if err := validate(step.Before); err != nil {
			return fmt.Errorf("before: %w", err)
		}
	}
	return nil
}

func validateAssertion(a *Assertion) error {
	switch a.Type {
	case AssertEventsOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("events list is required for events_order")
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("event is required for event_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case AssertNodeCount, AssertSegmentCount:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
