// Package model defines the wire types shared through the state repository:
// node presence records, broadcast events, and the aggregated world state.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeRecord is one node's presence record, stored as nodes/<id>.json.
// The node ID is carried by the file name, not the payload.
type NodeRecord struct {
	ID        string `json:"-"`
	StreamRef string `json:"stream_ref"`
	Timestamp int64  `json:"timestamp"`
	CreatedAt int64  `json:"creation_timestamp"`
}

// Event is an ephemeral broadcast message, stored as events/<id>.json.
// It is logically expired once now > Timestamp+TTL.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	NodeID    string          `json:"node_id"`
	Timestamp int64           `json:"timestamp"`
	TTL       int64           `json:"ttl"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Well-known event types emitted by the node itself. The type tag is an
// open string; other nodes may use anything.
const (
	EventNodeJoined = "node-joined"
	EventPresence   = "presence-announcement"
	EventSignal     = "directed-signal"
)

// EventID derives the globally unique event identifier. Uniqueness holds as
// long as one node does not publish two events of the same type within the
// same wall-clock second.
func EventID(eventType, nodeID string, publishedAt time.Time) string {
	return fmt.Sprintf("%s-%s-%d", eventType, nodeID, publishedAt.Unix())
}

// Expired reports whether the event's TTL has elapsed at the given time.
func (e Event) Expired(now time.Time) bool {
	return now.Unix() > e.Timestamp+e.TTL
}

// Connection is reserved for future topology data. The connections list in
// WorldState is always empty today.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WorldState is the full aggregate snapshot of the mesh, rebuilt from the
// repository working copy on every tick. It is never partially updated.
type WorldState struct {
	Nodes       []NodeRecord `json:"nodes"`
	Connections []Connection `json:"connections"`
	Events      []Event      `json:"events"`
}
