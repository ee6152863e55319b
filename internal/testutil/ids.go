// Package testutil provides deterministic stand-ins for the integrator's
// collaborators: a fixed id generator, a manual clock, and an in-memory
// route network implementing the spatial, shadow, live-store and publish
// interfaces.
package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SequentialIDs hands out deterministic UUIDs: 00000000-0000-0000-0000-
// 000000000001, ...02 and so on. Safe for concurrent use.
type SequentialIDs struct {
	mu   sync.Mutex
	next int
}

// NewSequentialIDs creates a generator starting at 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{next: 1}
}

// NewSequentialIDsAt creates a generator starting at n, for tests that
// reserve the lower ids for fixture entities.
func NewSequentialIDsAt(n int) *SequentialIDs {
	return &SequentialIDs{next: n}
}

// New returns the next deterministic id.
func (g *SequentialIDs) New() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ID(g.next)
	g.next++
	return id
}

// ID builds the deterministic UUID for index n. Panics outside 0..9999,
// which no test needs.
func ID(n int) uuid.UUID {
	if n < 0 || n > 9999 {
		panic(fmt.Sprintf("testutil.ID out of range: %d", n))
	}
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

// ManualClock returns a fixed-step time source: each call advances one
// second from the epoch, keeping event timestamps distinct but stable.
type ManualClock struct {
	mu   sync.Mutex
	last time.Time
}

// NewManualClock starts at 2024-01-01T00:00:00Z.
func NewManualClock() *ManualClock {
	return &ManualClock{last: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the next tick.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.last
	c.last = c.last.Add(time.Second)
	return t
}
