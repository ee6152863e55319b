package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openftth/gdb-integrator/internal/model"
)

// EditLogReader is the read side of the durable edit log. Rows come back
// ordered by ascending sequence number, already parsed.
type EditLogReader interface {
	// EditsAfter returns up to limit edit operations with a sequence
	// number strictly greater than seq.
	EditsAfter(ctx context.Context, seq int64, limit int) ([]model.EditOperation, error)

	// Checkpoint returns the last fully processed sequence number,
	// zero on first run.
	Checkpoint(ctx context.Context) (int64, error)
}

// Poller tails the edit log on a fixed interval and enqueues every new row.
//
// The poller only advances an in-memory "latest seen" counter; the durable
// checkpoint is written by the dispatcher after a row's side effects are
// fully applied. Across a crash between enqueue and processing this yields
// at-least-once delivery, which the idempotent event-id store downstream
// turns into effectively-once emission.
type Poller struct {
	log      EditLogReader
	queue    *Queue
	interval time.Duration
	batch    int
	logger   *slog.Logger

	latestSeen int64
}

// New creates a poller feeding queue. batch bounds how many rows one poll
// reads; zero means 500.
func New(log EditLogReader, queue *Queue, interval time.Duration, batch int, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if batch <= 0 {
		batch = 500
	}
	return &Poller{
		log:      log,
		queue:    queue,
		interval: interval,
		batch:    batch,
		logger:   logger,
	}
}

// LatestSeen returns the highest sequence number the poller has enqueued.
func (p *Poller) LatestSeen() int64 {
	return p.latestSeen
}

// Run polls until ctx is cancelled. On cancellation it stops issuing
// queries, finishes enqueuing the rows of the current batch, closes the
// queue and returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	start, err := p.log.Checkpoint(ctx)
	if err != nil {
		p.queue.Close()
		return fmt.Errorf("read checkpoint: %w", err)
	}
	p.latestSeen = start
	p.logger.Info("poller starting", "checkpoint", start, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.pollOnce(ctx); err != nil {
			p.queue.Close()
			return err
		}

		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", "latest_seen", p.latestSeen)
			p.queue.Close()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce reads and enqueues every row newer than latestSeen, draining in
// batches until the log has nothing further.
func (p *Poller) pollOnce(ctx context.Context) error {
	for {
		ops, err := p.log.EditsAfter(ctx, p.latestSeen, p.batch)
		if err != nil {
			return fmt.Errorf("read edit log after %d: %w", p.latestSeen, err)
		}
		if len(ops) == 0 {
			return nil
		}
		for _, op := range ops {
			if !p.queue.Enqueue(op) {
				// Queue closed under us; nothing more to deliver.
				return nil
			}
			p.latestSeen = op.SequenceNumber
			p.logger.Debug("edit operation enqueued",
				"seq", op.SequenceNumber,
				"kind", op.Kind,
				"edit", op.Edit.String(),
			)
		}
		if len(ops) < p.batch {
			return nil
		}
	}
}
