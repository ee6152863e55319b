// Package publish delivers domain events to the downstream message bus and
// keeps the set of already-emitted command ids that makes at-least-once
// edit delivery safe.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/openftth/gdb-integrator/internal/events"
)

const (
	headerCommandID = "Integrator-Cmd-Id"

	preloadIdleCutoff = 2 * time.Second
)

// Publisher is the write side of the message bus as the dispatcher sees it.
type Publisher interface {
	Publish(ctx context.Context, ev events.DomainEvent) error
}

// JetStreamPublisher publishes domain events to a NATS JetStream stream,
// one subject per event type under a common prefix.
type JetStreamPublisher struct {
	js      jetstream.JetStream
	stream  string
	subject string
	log     *slog.Logger
}

// NewJetStreamPublisher connects the publisher to a stream, creating or
// updating it to cover subject "<prefix>.>".
func NewJetStreamPublisher(ctx context.Context, nc *nats.Conn, stream, subjectPrefix string, log *slog.Logger) (*JetStreamPublisher, error) {
	if log == nil {
		log = slog.Default()
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("init jetstream: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}
	return &JetStreamPublisher{
		js:      js,
		stream:  stream,
		subject: strings.TrimSuffix(subjectPrefix, "."),
		log:     log,
	}, nil
}

// Publish sends one event. The event id doubles as the broker-side message
// id so JetStream's own duplicate window adds a second layer of dedupe
// behind the in-process one.
func (p *JetStreamPublisher) Publish(ctx context.Context, ev events.DomainEvent) error {
	env := ev.Envelope()
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", env.EventID, err)
	}

	msg := nats.NewMsg(fmt.Sprintf("%s.%s", p.subject, env.EventType))
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, env.EventID.String())
	msg.Header.Set(headerCommandID, env.CommandID.String())

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish %s %s: %w", env.EventType, env.EventID, err)
	}
	p.log.Debug("event published",
		"type", env.EventType,
		"event_id", env.EventID,
		"cmd_id", env.CommandID,
		"last_in_cmd", env.IsLastEventInCommand,
	)
	return nil
}

// EmittedCommandIDs replays the stream's headers and returns every command
// id ever published. Called once at startup to seed the idempotency store;
// an empty or missing stream yields an empty set.
func (p *JetStreamPublisher) EmittedCommandIDs(ctx context.Context) (map[uuid.UUID]struct{}, error) {
	ids := make(map[uuid.UUID]struct{})

	cons, err := p.js.OrderedConsumer(ctx, p.stream, jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverAllPolicy,
		HeadersOnly:   true,
	})
	if err != nil {
		if errors.Is(err, jetstream.ErrStreamNotFound) {
			return ids, nil
		}
		return nil, fmt.Errorf("open consumer on %s: %w", p.stream, err)
	}

	for {
		msg, err := cons.Next(jetstream.FetchMaxWait(preloadIdleCutoff))
		if err != nil {
			// No message inside the cutoff means the stream is drained.
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, jetstream.ErrNoMessages) {
				return ids, nil
			}
			return nil, fmt.Errorf("read emitted events from %s: %w", p.stream, err)
		}
		raw := msg.Headers().Get(headerCommandID)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			p.log.Warn("skipping malformed command id header", "value", raw)
			continue
		}
		ids[id] = struct{}{}
	}
}
