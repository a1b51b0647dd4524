// Package registry reads and writes node presence records in the state
// repository under the nodes/ prefix.
package registry

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

const prefix = "nodes"

// Key returns the store key for a node's presence record.
func Key(nodeID string) string {
	return prefix + "/" + nodeID + ".json"
}

// Registry manages this node's presence record and reads everyone else's.
type Registry struct {
	store  store.Store
	self   string
	logger *slog.Logger
}

func New(s store.Store, selfID string, logger *slog.Logger) *Registry {
	return &Registry{store: s, self: selfID, logger: logger}
}

// ReadAll parses every presence record, sorted by node ID. A record that
// fails to parse is logged and skipped; one bad file never hides the rest
// of the mesh.
func (r *Registry) ReadAll(ctx context.Context) ([]model.NodeRecord, error) {
	raw, err := r.store.GetAll(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("read node records: %w", err)
	}

	nodes := make([]model.NodeRecord, 0, len(raw))
	for key, data := range raw {
		name := path.Base(key)
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		var rec model.NodeRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			r.logger.Warn("skipping malformed node record", "key", key, "err", err)
			continue
		}
		rec.ID = strings.TrimSuffix(name, ".json")
		nodes = append(nodes, rec)
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// WriteSelf overwrites this node's record with a fresh heartbeat timestamp,
// preserving creation_timestamp from any prior record so the aggregate can
// tell long-running nodes from recent joiners. It returns the key written
// so the caller can flush it with the rest of the tick's changes.
func (r *Registry) WriteSelf(ctx context.Context, streamRef string, now time.Time) (string, error) {
	rec := model.NodeRecord{
		ID:        r.self,
		StreamRef: streamRef,
		Timestamp: now.Unix(),
		CreatedAt: now.Unix(),
	}

	if prior, ok := r.readSelf(ctx); ok && prior.CreatedAt > 0 {
		rec.CreatedAt = prior.CreatedAt
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal own record: %w", err)
	}
	key := Key(r.self)
	if err := r.store.Put(ctx, key, append(data, '\n')); err != nil {
		return "", fmt.Errorf("write own record: %w", err)
	}
	return key, nil
}

func (r *Registry) readSelf(ctx context.Context) (model.NodeRecord, bool) {
	raw, err := r.store.GetAll(ctx, prefix)
	if err != nil {
		return model.NodeRecord{}, false
	}
	data, ok := raw[Key(r.self)]
	if !ok {
		return model.NodeRecord{}, false
	}
	var rec model.NodeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.NodeRecord{}, false
	}
	rec.ID = r.self
	return rec, true
}
