package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/openftth/gdb-integrator/internal/dispatch"
	"github.com/openftth/gdb-integrator/internal/geom"
	"github.com/openftth/gdb-integrator/internal/model"
	"github.com/openftth/gdb-integrator/internal/publish"
	"github.com/openftth/gdb-integrator/internal/reconcile"
	"github.com/openftth/gdb-integrator/internal/testutil"
)

const (
	defaultTolerance = 0.01
	harnessAppName   = "GDB_INTEGRATOR"

	// Edit-log event ids live above this offset so they never collide
	// with fixture entity ids or minted ids.
	editIDOffset = 1000

	// Minted entity ids (synthesized nodes, split replacements) start
	// here, above any plausible fixture id.
	mintedIDStart = 100
)

// Result holds everything a scenario produced.
type Result struct {
	Network *testutil.Network
	Steps   []StepTrace
}

// StepTrace records what one edit-log row caused.
type StepTrace struct {
	Seq    int64
	Entity string
	Op     string
	Events []EventRecord
}

// EventRecord is one published domain event, reduced to its stable fields.
type EventRecord struct {
	Type        string
	CommandType string
	Last        bool
}

// Run replays a scenario through the dispatcher against a fresh in-memory
// network. IDs and timestamps are deterministic, so repeated runs produce
// identical traces.
func Run(scenario *Scenario) (*Result, error) {
	tolerance := scenario.Tolerance
	if tolerance == 0 {
		tolerance = defaultTolerance
	}

	network := testutil.NewNetwork(tolerance)
	for _, spec := range scenario.Seed.Nodes {
		network.SeedNode(nodeFromSpec(&spec))
	}
	for _, spec := range scenario.Seed.Segments {
		network.SeedSegment(segmentFromSpec(&spec))
	}

	ids := testutil.NewSequentialIDsAt(mintedIDStart)
	clock := testutil.NewManualClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := reconcile.AllowAllValidator{}
	minter := reconcile.Minter{IDs: ids, AppName: harnessAppName}

	disp := dispatch.New(dispatch.Config{
		Nodes:      reconcile.NewNodeFactory(network, network, validator, harnessAppName, tolerance, logger),
		Segments:   reconcile.NewSegmentFactory(network, network, validator, minter, harnessAppName, tolerance, logger),
		Splits:     reconcile.NewSplitHandler(network, network.Routes(), network, ids, harnessAppName, tolerance, logger),
		Spatial:    network,
		Routes:     network.Routes(),
		Shadow:     network,
		Checkpoint: network,
		Publisher:  network,
		Seen:       publish.NewCommandIDStore(nil),
		IDs:        ids,
		Now:        clock.Now,
		Log:        logger,
	})

	result := &Result{Network: network}
	ctx := context.Background()

	for i, step := range scenario.Edits {
		op, err := buildEdit(int64(i+1), &step)
		if err != nil {
			return nil, fmt.Errorf("edits[%d]: %w", i, err)
		}

		// Mirror the GIS editor's own write before the integrator sees
		// the change-log row, the way the trigger-fed table behaves.
		network.AppendEdit(op)

		before := len(network.Published)
		if err := disp.Process(ctx, op); err != nil {
			return nil, fmt.Errorf("edits[%d] (%s %s): %w", i, step.Entity, step.Op, err)
		}

		trace := StepTrace{Seq: op.SequenceNumber, Entity: step.Entity, Op: step.Op}
		for _, ev := range network.Published[before:] {
			env := ev.Envelope()
			trace.Events = append(trace.Events, EventRecord{
				Type:        env.EventType,
				CommandType: env.CommandType,
				Last:        env.IsLastEventInCommand,
			})
		}
		result.Steps = append(result.Steps, trace)
	}

	return result, nil
}

// Verify applies the scenario's assertions to the result.
func (r *Result) Verify(scenario *Scenario) error {
	for i, a := range scenario.Assertions {
		if err := r.verifyOne(&a); err != nil {
			return fmt.Errorf("assertions[%d] (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

func (r *Result) verifyOne(a *Assertion) error {
	switch a.Type {
	case AssertEventsOrder:
		got := r.Network.PublishedTypes()
		if len(got) != len(a.Events) {
			return fmt.Errorf("expected %d events %v, got %d: %v", len(a.Events), a.Events, len(got), got)
		}
		for i := range got {
			if got[i] != a.Events[i] {
				return fmt.Errorf("event[%d]: expected %s, got %s (full order: %v)", i, a.Events[i], got[i], got)
			}
		}
	case AssertEventCount:
		count := 0
		for _, typ := range r.Network.PublishedTypes() {
			if typ == a.Event {
				count++
			}
		}
		if count != a.Count {
			return fmt.Errorf("expected %d %s events, got %d", a.Count, a.Event, count)
		}
	case AssertNodeCount:
		if got := len(r.Network.LiveNodes()); got != a.Count {
			return fmt.Errorf("expected %d live nodes, got %d", a.Count, got)
		}
	case AssertSegmentCount:
		if got := len(r.Network.LiveSegments()); got != a.Count {
			return fmt.Errorf("expected %d live segments, got %d", a.Count, got)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func buildEdit(seq int64, step *EditStep) (model.EditOperation, error) {
	op := model.EditOperation{
		SequenceNumber: seq,
		EventID:        testutil.ID(editIDOffset + int(seq)),
	}

	switch step.Op {
	case "created":
		op.Edit = model.EditCreated
	case "updated":
		op.Edit = model.EditUpdated
	case "deleted":
		op.Edit = model.EditDeleted
	default:
		return op, fmt.Errorf("unknown op %q", step.Op)
	}

	switch step.Entity {
	case "node":
		op.Kind = model.KindRouteNode
		if step.Before != nil {
			op.NodeBefore = nodeFromSpec(step.Before)
		}
		if step.After != nil {
			op.NodeAfter = nodeFromSpec(step.After)
		}
	case "segment":
		op.Kind = model.KindRouteSegment
		if step.Before != nil {
			op.SegmentBefore = segmentFromSpec(step.Before)
		}
		if step.After != nil {
			op.SegmentAfter = segmentFromSpec(step.After)
		}
	default:
		return op, fmt.Errorf("unknown entity %q", step.Entity)
	}

	return op, nil
}

func nodeFromSpec(e *EntitySpec) *model.RouteNode {
	return &model.RouteNode{
		Mrid:              testutil.ID(e.ID),
		Coord:             geom.Point{X: e.Coord[0], Y: e.Coord[1]},
		Username:          e.User,
		ApplicationName:   appOf(e),
		MarkedForDeletion: e.Deleted,
	}
}

func segmentFromSpec(e *EntitySpec) *model.RouteSegment {
	line := make(geom.Line, len(e.Line))
	for i, p := range e.Line {
		line[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return &model.RouteSegment{
		Mrid:              testutil.ID(e.ID),
		Coord:             line,
		Username:          e.User,
		ApplicationName:   appOf(e),
		MarkedForDeletion: e.Deleted,
	}
}

func appOf(e *EntitySpec) string {
	if e.App != "" {
		return e.App
	}
	return "QGIS"
}
