// Package dispatch runs the single-consumer reconciliation loop: dequeue
// one edit operation, classify it, apply the resulting notifications to the
// stores, publish the domain events and advance the checkpoint.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openftth/gdb-integrator/internal/events"
	"github.com/openftth/gdb-integrator/internal/model"
	"github.com/openftth/gdb-integrator/internal/observability"
	"github.com/openftth/gdb-integrator/internal/poller"
	"github.com/openftth/gdb-integrator/internal/publish"
	"github.com/openftth/gdb-integrator/internal/reconcile"
)

// CheckpointWriter persists the last fully processed sequence number.
type CheckpointWriter interface {
	SetCheckpoint(ctx context.Context, seq int64) error
}

// Dispatcher consumes the edit queue strictly one operation at a time.
// Serialization is the concurrency model: topology mutations must observe
// a consistent view of the network, so no two edits are ever in flight.
type Dispatcher struct {
	queue      *poller.Queue
	nodes      *reconcile.NodeFactory
	segments   *reconcile.SegmentFactory
	splits     *reconcile.SplitHandler
	spatial    reconcile.SpatialQueries
	routes     reconcile.RouteStore
	shadow     reconcile.ShadowStore
	checkpoint CheckpointWriter
	publisher  publish.Publisher
	seen       *publish.CommandIDStore
	ids        events.IDGenerator
	now        func() time.Time
	metrics    *observability.Collector
	log        *slog.Logger
}

// Config carries the dispatcher's collaborators.
type Config struct {
	Queue      *poller.Queue
	Nodes      *reconcile.NodeFactory
	Segments   *reconcile.SegmentFactory
	Splits     *reconcile.SplitHandler
	Spatial    reconcile.SpatialQueries
	Routes     reconcile.RouteStore
	Shadow     reconcile.ShadowStore
	Checkpoint CheckpointWriter
	Publisher  publish.Publisher
	Seen       *publish.CommandIDStore
	IDs        events.IDGenerator
	Now        func() time.Time
	Metrics    *observability.Collector
	Log        *slog.Logger
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IDs == nil {
		cfg.IDs = events.UUIDv7Generator{}
	}
	return &Dispatcher{
		queue:      cfg.Queue,
		nodes:      cfg.Nodes,
		segments:   cfg.Segments,
		splits:     cfg.Splits,
		spatial:    cfg.Spatial,
		routes:     cfg.Routes,
		shadow:     cfg.Shadow,
		checkpoint: cfg.Checkpoint,
		publisher:  cfg.Publisher,
		seen:       cfg.Seen,
		ids:        cfg.IDs,
		now:        cfg.Now,
		metrics:    cfg.Metrics,
		log:        cfg.Log,
	}
}

// Run consumes the queue until it closes or an infrastructure fault occurs.
// Store and broker errors return immediately and halt the pipeline: partial
// application of a multi-event command is worse than a restart, and the
// checkpoint plus the command-id store make the restart safe. On
// cancellation the already-enqueued edits still run to completion under a
// detached context before Run returns the cancellation error.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher starting")

	for {
		op, ok := d.queue.TryDequeue()
		if ok {
			d.metrics.SetQueueDepth(d.queue.Len())
			pctx := ctx
			if ctx.Err() != nil {
				// Shutdown drain: store and broker calls must not abort
				// mid-edit on the cancelled context.
				pctx = context.WithoutCancel(ctx)
			}
			if err := d.Process(pctx, op); err != nil {
				d.log.Error("edit processing failed, halting",
					"seq", op.SequenceNumber,
					"kind", op.Kind,
					"err", err,
				)
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			// Drain what the poller already enqueued, then exit.
			if d.queue.Len() > 0 {
				continue
			}
			if d.queue.Closed() {
				d.log.Info("dispatcher stopping: context cancelled")
				return ctx.Err()
			}
			// Poller will close the queue shortly; wait for it so no
			// enqueued edit is dropped between its close and our exit.
			<-d.queue.Wait()
		case <-d.queue.Wait():
			if d.queue.Len() == 0 && d.queue.Closed() {
				d.log.Info("dispatcher stopping: queue closed")
				return nil
			}
		}
	}
}

// Process handles one edit operation end-to-end. Exported so the scenario
// harness can drive the dispatcher without the queue loop.
func (d *Dispatcher) Process(ctx context.Context, op model.EditOperation) error {
	started := d.now()
	outcome, err := d.process(ctx, op)
	if err != nil {
		return err
	}
	d.metrics.ObserveEdit(string(op.Kind), outcome, d.now().Sub(started))

	if err := d.checkpoint.SetCheckpoint(ctx, op.SequenceNumber); err != nil {
		return fmt.Errorf("advance checkpoint to %d: %w", op.SequenceNumber, err)
	}
	d.metrics.SetCheckpoint(op.SequenceNumber)
	return nil
}

func (d *Dispatcher) process(ctx context.Context, op model.EditOperation) (outcome string, err error) {
	if d.seen != nil && d.seen.Seen(op.EventID) {
		d.log.Debug("edit already emitted, skipping",
			"seq", op.SequenceNumber,
			"event_id", op.EventID,
		)
		return "duplicate", nil
	}

	if op.Edit == model.EditDeleted {
		return d.retire(ctx, op)
	}

	notifications, err := d.classify(ctx, op)
	if err != nil {
		return "", err
	}

	cmd := events.NewCommand(op.EventID, commandType(notifications), d.ids, d.now)
	outcome = commandType(notifications)

	for _, n := range notifications {
		if err := d.apply(ctx, cmd, op, n); err != nil {
			return "", err
		}
	}

	batch := cmd.Finalize()
	if len(batch) == 0 {
		return outcome, nil
	}
	for _, ev := range batch {
		if err := d.publisher.Publish(ctx, ev); err != nil {
			return "", err
		}
		d.metrics.ObservePublished(ev.Envelope().EventType)
	}
	if d.seen != nil {
		d.seen.Add(op.EventID)
	}
	return outcome, nil
}

// retire handles a hard deletion row. The entity left the geodatabase
// outside the mark-for-deletion flow (an integrator cleanup or an
// administrative purge); the shadow row is dropped and nothing is emitted.
func (d *Dispatcher) retire(ctx context.Context, op model.EditOperation) (string, error) {
	switch op.Kind {
	case model.KindRouteNode:
		if err := d.shadow.DeleteNode(ctx, op.NodeBefore.Mrid); err != nil {
			return "", fmt.Errorf("retire shadow node %s: %w", op.NodeBefore.Mrid, err)
		}
	case model.KindRouteSegment:
		if err := d.shadow.DeleteSegment(ctx, op.SegmentBefore.Mrid); err != nil {
			return "", fmt.Errorf("retire shadow segment %s: %w", op.SegmentBefore.Mrid, err)
		}
	}
	d.log.Debug("entity hard-deleted, shadow retired", "seq", op.SequenceNumber, "kind", op.Kind)
	return "retired", nil
}

func (d *Dispatcher) classify(ctx context.Context, op model.EditOperation) ([]events.Notification, error) {
	switch op.Kind {
	case model.KindRouteNode:
		if op.Edit == model.EditCreated {
			return d.nodes.CreateDigitized(ctx, op.NodeAfter)
		}
		return d.nodes.CreateUpdated(ctx, op.NodeAfter)
	case model.KindRouteSegment:
		if op.Edit == model.EditCreated {
			return d.segments.CreateDigitized(ctx, op.SegmentAfter)
		}
		return d.segments.CreateUpdated(ctx, op.SegmentAfter)
	default:
		return nil, fmt.Errorf("edit %d: unknown entity kind %q", op.SequenceNumber, op.Kind)
	}
}

// apply executes one notification's side effects and appends its domain
// events to cmd. The switch is exhaustive over the notification variants.
func (d *Dispatcher) apply(ctx context.Context, cmd *events.Command, op model.EditOperation, n events.Notification) error {
	switch v := n.(type) {
	case events.DoNothing:
		d.log.Debug("nothing to reconcile", "seq", op.SequenceNumber, "reason", v.Reason)
		return nil

	case events.NodeAdded:
		if v.Synthesized {
			if err := d.routes.InsertNode(ctx, v.Node); err != nil {
				return fmt.Errorf("insert synthesized node %s: %w", v.Node.Mrid, err)
			}
			if err := d.shadow.SaveNode(ctx, v.Node); err != nil {
				return fmt.Errorf("save shadow for synthesized node %s: %w", v.Node.Mrid, err)
			}
		}
		cmd.Append(&events.RouteNodeAdded{
			NodeID:   v.Node.Mrid,
			Geometry: v.Node.Coord,
		}, events.TypeRouteNodeAdded)
		return nil

	case events.NodeDeleted:
		cmd.Append(&events.RouteNodeMarkedForDeletion{
			NodeID: v.Node.Mrid,
		}, events.TypeRouteNodeMarkedForDeletion)
		return nil

	case events.NodeLocationChanged:
		cmd.Append(&events.RouteNodeGeometryModified{
			NodeID:   v.Node.Mrid,
			Geometry: v.Node.Coord,
		}, events.TypeRouteNodeGeometryModified)
		return nil

	case events.SegmentAdded:
		from, to, err := d.endpointNodes(ctx, v.Segment)
		if err != nil {
			return err
		}
		cmd.Append(&events.RouteSegmentAdded{
			SegmentID:  v.Segment.Mrid,
			FromNodeID: from,
			ToNodeID:   to,
			Geometry:   v.Segment.Coord,
		}, events.TypeRouteSegmentAdded)
		return nil

	case events.SegmentDeleted:
		cmd.Append(&events.RouteSegmentMarkedForDeletion{
			SegmentID: v.Segment.Mrid,
		}, events.TypeRouteSegmentMarkedForDeletion)
		return nil

	case events.SegmentLocationChanged:
		cmd.Append(&events.RouteSegmentGeometryModified{
			SegmentID: v.Segment.Mrid,
			Geometry:  v.Segment.Coord,
		}, events.TypeRouteSegmentGeometryModified)
		return nil

	case events.SegmentConnectivityChanged:
		return d.replaceSegment(ctx, cmd, v)

	case events.ExistingSegmentSplit:
		if _, err := d.splits.Split(ctx, cmd, v); err != nil {
			return err
		}
		return nil

	case events.InvalidNodeOperation:
		d.log.Warn("rejecting digitized node",
			"mrid", v.Node.Mrid,
			"code", v.Code,
			"msg", v.Message,
		)
		if err := d.routes.DeleteNode(ctx, v.Node.Mrid); err != nil {
			return fmt.Errorf("delete invalid node %s: %w", v.Node.Mrid, err)
		}
		if err := d.shadow.DeleteNode(ctx, v.Node.Mrid); err != nil {
			return fmt.Errorf("retire shadow of invalid node %s: %w", v.Node.Mrid, err)
		}
		return nil

	case events.InvalidSegmentOperation:
		d.log.Warn("rejecting digitized segment",
			"mrid", v.Segment.Mrid,
			"code", v.Code,
			"msg", v.Message,
		)
		if err := d.routes.DeleteSegment(ctx, v.Segment.Mrid); err != nil {
			return fmt.Errorf("delete invalid segment %s: %w", v.Segment.Mrid, err)
		}
		if err := d.shadow.DeleteSegment(ctx, v.Segment.Mrid); err != nil {
			return fmt.Errorf("retire shadow of invalid segment %s: %w", v.Segment.Mrid, err)
		}
		return nil

	case events.RollbackInvalidNode:
		d.log.Warn("rolling back node update",
			"mrid", v.Before.Mrid,
			"code", v.Code,
			"msg", v.Message,
		)
		if err := d.routes.UpdateNode(ctx, v.Before); err != nil {
			return fmt.Errorf("restore node %s: %w", v.Before.Mrid, err)
		}
		if err := d.shadow.SaveNode(ctx, v.Before); err != nil {
			return fmt.Errorf("restore shadow node %s: %w", v.Before.Mrid, err)
		}
		return nil

	case events.RollbackInvalidSegment:
		d.log.Warn("rolling back segment update",
			"mrid", v.Before.Mrid,
			"code", v.Code,
			"msg", v.Message,
		)
		if err := d.routes.UpdateSegment(ctx, v.Before); err != nil {
			return fmt.Errorf("restore segment %s: %w", v.Before.Mrid, err)
		}
		if err := d.shadow.SaveSegment(ctx, v.Before); err != nil {
			return fmt.Errorf("restore shadow segment %s: %w", v.Before.Mrid, err)
		}
		return nil

	default:
		return fmt.Errorf("edit %d: unhandled notification %T", op.SequenceNumber, n)
	}
}

// replaceSegment applies a connectivity change by cloning the segment under
// a fresh mrid and retiring the original, so the edge's identity changes
// along with its connectivity.
func (d *Dispatcher) replaceSegment(ctx context.Context, cmd *events.Command, v events.SegmentConnectivityChanged) error {
	clone := v.After.Clone()
	clone.Mrid = d.ids.New()

	if err := d.routes.InsertSegment(ctx, clone); err != nil {
		return fmt.Errorf("insert connectivity clone %s: %w", clone.Mrid, err)
	}
	if err := d.shadow.SaveSegment(ctx, clone); err != nil {
		return fmt.Errorf("save shadow clone %s: %w", clone.Mrid, err)
	}
	if err := d.routes.DeleteSegment(ctx, v.After.Mrid); err != nil {
		return fmt.Errorf("delete rewired segment %s: %w", v.After.Mrid, err)
	}
	if err := d.shadow.DeleteSegment(ctx, v.After.Mrid); err != nil {
		return fmt.Errorf("retire shadow of rewired segment %s: %w", v.After.Mrid, err)
	}

	from, to, err := d.endpointNodes(ctx, clone)
	if err != nil {
		return err
	}
	cmd.Append(&events.RouteSegmentAdded{
		SegmentID:  clone.Mrid,
		FromNodeID: from,
		ToNodeID:   to,
		Geometry:   clone.Coord,
	}, events.TypeRouteSegmentAdded)
	cmd.Append(&events.RouteSegmentRemoved{
		SegmentID:          v.After.Mrid,
		ReplacedBySegments: []uuid.UUID{clone.Mrid},
	}, events.TypeRouteSegmentRemoved)

	d.log.Info("segment connectivity rewired",
		"segment", v.After.Mrid,
		"replacement", clone.Mrid,
	)
	return nil
}

// endpointNodes resolves the node ids at a segment's endpoints, nil when an
// endpoint is still lonely.
func (d *Dispatcher) endpointNodes(ctx context.Context, segment *model.RouteSegment) (from, to uuid.UUID, err error) {
	startNodes, err := d.spatial.NodesIntersectingPoint(ctx, segment.Coord.StartPoint())
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("nodes at start of %s: %w", segment.Mrid, err)
	}
	endNodes, err := d.spatial.NodesIntersectingPoint(ctx, segment.Coord.EndPoint())
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("nodes at end of %s: %w", segment.Mrid, err)
	}
	if len(startNodes) > 0 {
		from = startNodes[0].Mrid
	}
	if len(endNodes) > 0 {
		to = endNodes[0].Mrid
	}
	return from, to, nil
}

// commandType names the batch after its first consequential notification.
func commandType(notifications []events.Notification) string {
	for _, n := range notifications {
		if _, ok := n.(events.DoNothing); ok {
			continue
		}
		return events.Name(n)
	}
	return "DoNothing"
}
