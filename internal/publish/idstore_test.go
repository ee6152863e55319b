package publish

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCommandIDStore_SeedAndAdd(t *testing.T) {
	seeded := uuid.New()
	fresh := uuid.New()

	store := NewCommandIDStore(map[uuid.UUID]struct{}{seeded: {}})
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.Seen(seeded))
	assert.False(t, store.Seen(fresh))

	store.Add(fresh)
	assert.True(t, store.Seen(fresh))
	assert.Equal(t, 2, store.Len())

	store.Add(fresh) // idempotent
	assert.Equal(t, 2, store.Len())
}

func TestCommandIDStore_NilSeed(t *testing.T) {
	store := NewCommandIDStore(nil)
	assert.Equal(t, 0, store.Len())
	assert.False(t, store.Seen(uuid.New()))
}

func TestCommandIDStore_Concurrent(t *testing.T) {
	store := NewCommandIDStore(nil)
	ids := make([]uuid.UUID, 100)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			store.Add(id)
			store.Seen(id)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, len(ids), store.Len())
}
