package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the canonical, JSON-serialized form of a scenario run,
// reduced to fields that stay stable across runs.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Steps        []StepSnapshot `json:"steps"`
	Final        FinalSnapshot  `json:"final"`
}

// StepSnapshot is one edit-log row and the events it published.
type StepSnapshot struct {
	Seq    int64           `json:"seq"`
	Entity string          `json:"entity"`
	Op     string          `json:"op"`
	Events []EventSnapshot `json:"events"`
}

// EventSnapshot is one published event.
type EventSnapshot struct {
	Type        string `json:"type"`
	CommandType string `json:"command_type"`
	Last        bool   `json:"last,omitempty"`
}

// FinalSnapshot summarizes the live network after the last edit.
type FinalSnapshot struct {
	Nodes    int `json:"nodes"`
	Segments int `json:"segments"`
}

// Snapshot reduces a result to its golden-file form.
func Snapshot(scenario *Scenario, result *Result) TraceSnapshot {
	snap := TraceSnapshot{
		ScenarioName: scenario.Name,
		Final: FinalSnapshot{
			Nodes:    len(result.Network.LiveNodes()),
			Segments: len(result.Network.LiveSegments()),
		},
	}
	for _, step := range result.Steps {
		ss := StepSnapshot{
			Seq:    step.Seq,
			Entity: step.Entity,
			Op:     step.Op,
			Events: []EventSnapshot{},
		}
		for _, ev := range step.Events {
			ss.Events = append(ss.Events, EventSnapshot{
				Type:        ev.Type,
				CommandType: ev.CommandType,
				Last:        ev.Last,
			})
		}
		snap.Steps = append(snap.Steps, ss)
	}
	return snap
}

// RunWithGolden executes a scenario, checks its assertions, and compares
// the trace against a golden file stored in testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if err := result.Verify(scenario); err != nil {
		return err
	}

	traceJSON, err := json.MarshalIndent(Snapshot(scenario, result), "", "  ")
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return nil
}
