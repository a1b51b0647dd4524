// Package eventbus publishes and expires short-lived broadcast events in
// the state repository under the events/ prefix. Events replicate to other
// nodes through the store; an optional NATS mirror republishes them for
// co-located consumers such as renderer overlays.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/fabriziosalmi/synapse-state/internal/model"
	"github.com/fabriziosalmi/synapse-state/internal/store"
)

const prefix = "events"

// Key returns the store key for an event.
func Key(eventID string) string {
	return prefix + "/" + eventID + ".json"
}

// Bus reads, publishes, and reaps broadcast events.
type Bus struct {
	store  store.Store
	self   string
	mirror Publisher
	logger *slog.Logger
}

func New(s store.Store, selfID string, mirror Publisher, logger *slog.Logger) *Bus {
	if mirror == nil {
		mirror = &NoopPublisher{}
	}
	return &Bus{store: s, self: selfID, mirror: mirror, logger: logger}
}

// Append constructs an event and stages it without flushing, for callers
// that batch several writes into one commit. The identifier is derived from
// type, origin node, and publish second, which is unique as long as a node
// does not emit two events of the same type within one second.
func (b *Bus) Append(ctx context.Context, eventType string, payload json.RawMessage, ttl int64, now time.Time) (model.Event, error) {
	ev := model.Event{
		ID:        model.EventID(eventType, b.self, now),
		Type:      eventType,
		NodeID:    b.self,
		Timestamp: now.Unix(),
		TTL:       ttl,
		Data:      payload,
	}

	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return model.Event{}, fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	if err := b.store.Put(ctx, Key(ev.ID), append(data, '\n')); err != nil {
		return model.Event{}, fmt.Errorf("write event %s: %w", ev.ID, err)
	}

	// Mirroring is best-effort; a broken local mirror never blocks the mesh.
	if err := b.mirror.Publish(ctx, MirrorSubject(ev.Type), ev); err != nil {
		b.logger.Warn("event mirror publish failed", "event", ev.ID, "err", err)
	}
	return ev, nil
}

// Publish appends the event and immediately flushes it to the replicated
// store, inheriting the store's retry semantics. This is the path for
// standalone announcements like node-joined.
func (b *Bus) Publish(ctx context.Context, eventType string, payload json.RawMessage, ttl int64, now time.Time) (model.Event, error) {
	ev, err := b.Append(ctx, eventType, payload, ttl, now)
	if err != nil {
		return model.Event{}, err
	}
	msg := fmt.Sprintf("event %s from %s", ev.Type, b.self)
	if err := b.store.Flush(ctx, msg); err != nil {
		return model.Event{}, fmt.Errorf("publish %s: %w", ev.ID, err)
	}
	return ev, nil
}

// ReadAll parses every event file, expired ones included; filtering by TTL
// is the reader's concern. Malformed files are logged and skipped. Events
// come back ordered by publish time, then ID.
func (b *Bus) ReadAll(ctx context.Context) ([]model.Event, error) {
	raw, err := b.store.GetAll(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	events := make([]model.Event, 0, len(raw))
	for key, data := range raw {
		if !strings.HasSuffix(path.Base(key), ".json") {
			continue
		}
		var ev model.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			b.logger.Warn("skipping malformed event", "key", key, "err", err)
			continue
		}
		events = append(events, ev)
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

// ReapExpired deletes every locally-held event whose TTL has elapsed and
// stages the removals; they propagate on the next successful flush. Any
// node may reap: deletion of an absent key is a no-op, so concurrent reaps
// commute. A failed removal is logged and left for a later sweep.
func (b *Bus) ReapExpired(ctx context.Context, now time.Time) []string {
	events, err := b.ReadAll(ctx)
	if err != nil {
		b.logger.Warn("reap: reading events failed", "err", err)
		return nil
	}

	var reaped []string
	for _, ev := range events {
		if !ev.Expired(now) {
			continue
		}
		if err := b.store.Delete(ctx, Key(ev.ID)); err != nil {
			b.logger.Warn("reap: removing expired event failed", "event", ev.ID, "err", err)
			continue
		}
		b.logger.Info("reaped expired event", "event", ev.ID, "type", ev.Type)
		reaped = append(reaped, ev.ID)
	}
	return reaped
}
