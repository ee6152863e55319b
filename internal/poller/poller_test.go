package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openftth/gdb-integrator/internal/model"
)

type fakeLog struct {
	mu         sync.Mutex
	ops        []model.EditOperation
	checkpoint int64
	failWith   error
}

func (f *fakeLog) EditsAfter(ctx context.Context, seq int64, limit int) ([]model.EditOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []model.EditOperation
	for _, op := range f.ops {
		if op.SequenceNumber > seq {
			out = append(out, op)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeLog) Checkpoint(ctx context.Context) (int64, error) {
	return f.checkpoint, nil
}

func (f *fakeLog) add(seqs ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range seqs {
		f.ops = append(f.ops, op(s))
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoller_EnqueuesNewRowsInOrder(t *testing.T) {
	log := &fakeLog{}
	log.add(1, 2, 3)
	q := NewQueue()
	p := New(log, q, time.Millisecond, 2, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return q.Len() == 3 }, time.Second, time.Millisecond)
	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	for want := int64(1); want <= 3; want++ {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.SequenceNumber)
	}
	assert.Equal(t, int64(3), p.LatestSeen())
	assert.True(t, q.Closed(), "poller must close the queue on shutdown")
}

func TestPoller_StartsFromCheckpoint(t *testing.T) {
	log := &fakeLog{checkpoint: 2}
	log.add(1, 2, 3, 4)
	q := NewQueue()
	p := New(log, q, time.Millisecond, 10, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return q.Len() == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(3), got.SequenceNumber, "rows at or below the checkpoint are skipped")
}

func TestPoller_PicksUpLateRows(t *testing.T) {
	log := &fakeLog{}
	q := NewQueue()
	p := New(log, q, time.Millisecond, 10, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	log.add(1)
	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)

	log.add(2)
	require.Eventually(t, func() bool { return q.Len() == 2 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestPoller_StoreErrorStopsAndClosesQueue(t *testing.T) {
	boom := errors.New("connection refused")
	log := &fakeLog{failWith: boom}
	q := NewQueue()
	p := New(log, q, time.Millisecond, 10, discardLogger())

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, q.Closed())
}

func TestNew_Defaults(t *testing.T) {
	p := New(&fakeLog{}, NewQueue(), time.Second, 0, nil)
	assert.Equal(t, 500, p.batch)
	assert.NotNil(t, p.logger)
}
