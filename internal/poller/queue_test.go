package poller

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openftth/gdb-integrator/internal/model"
)

func op(seq int64) model.EditOperation {
	return model.EditOperation{SequenceNumber: seq, Kind: model.KindRouteNode, Edit: model.EditCreated}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()

	assert.True(t, q.Enqueue(op(1)))
	assert.True(t, q.Enqueue(op(2)))
	assert.True(t, q.Enqueue(op(3)))
	assert.Equal(t, 3, q.Len())

	for want := int64(1); want <= 3; want++ {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.SequenceNumber)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_WaitSignals(t *testing.T) {
	q := NewQueue()

	select {
	case <-q.Wait():
		t.Fatal("empty queue must not signal")
	default:
	}

	q.Enqueue(op(1))

	select {
	case <-q.Wait():
	default:
		t.Fatal("enqueue must signal a waiter")
	}
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue()
	q.Enqueue(op(1))

	q.Close()
	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(op(2)), "enqueue after close must fail")

	// Closing wakes waiters permanently.
	<-q.Wait()
	<-q.Wait()

	// Enqueued operations stay drainable after close.
	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(1), got.SequenceNumber)

	q.Close() // idempotent
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue()
	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for i := int64(0); i < perProducer; i++ {
				q.Enqueue(op(base*perProducer + i))
			}
		}(int64(p))
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())

	seen := make(map[int64]bool)
	for {
		got, ok := q.TryDequeue()
		if !ok {
			break
		}
		assert.False(t, seen[got.SequenceNumber], "sequence %d dequeued twice", got.SequenceNumber)
		seen[got.SequenceNumber] = true
	}
	assert.Len(t, seen, producers*perProducer)
}
