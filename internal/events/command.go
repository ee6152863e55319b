package events

import (
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces event and command ids. Production code uses UUIDv7
// so ids sort by creation time; tests substitute a fixed sequence for
// deterministic traces.
type IDGenerator interface {
	New() uuid.UUID
}

// UUIDv7Generator is the production IDGenerator.
type UUIDv7Generator struct{}

// New returns a fresh UUIDv7. Panics if generation fails, which does not
// happen in practice.
func (UUIDv7Generator) New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Command accumulates the ordered domain events caused by a single edit
// operation. Every appended event is stamped with the shared command id;
// Finalize marks the last event so consumers can see the batch boundary.
type Command struct {
	id     uuid.UUID
	typ    string
	ids    IDGenerator
	now    func() time.Time
	events []DomainEvent
}

// NewCommand starts an event batch. id is the command id shared by every
// event in the batch; typ is the notification name that produced the batch.
func NewCommand(id uuid.UUID, typ string, ids IDGenerator, now func() time.Time) *Command {
	if now == nil {
		now = time.Now
	}
	return &Command{id: id, typ: typ, ids: ids, now: now}
}

// ID returns the shared command id.
func (c *Command) ID() uuid.UUID {
	return c.id
}

// Append stamps ev's envelope and adds it to the batch, preserving order.
func (c *Command) Append(ev DomainEvent, eventType string) {
	env := ev.Envelope()
	env.EventType = eventType
	env.EventID = c.ids.New()
	env.EventTimestamp = c.now().UTC()
	env.CommandID = c.id
	env.CommandType = c.typ
	env.IsLastEventInCommand = false
	c.events = append(c.events, ev)
}

// Len returns the number of events accumulated so far.
func (c *Command) Len() int {
	return len(c.events)
}

// Finalize marks the final event as the last in the command and returns the
// ordered batch. Returns nil when the command produced no events.
func (c *Command) Finalize() []DomainEvent {
	if len(c.events) == 0 {
		return nil
	}
	c.events[len(c.events)-1].Envelope().IsLastEventInCommand = true
	return c.events
}
