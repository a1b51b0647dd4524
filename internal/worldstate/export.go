package worldstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fabriziosalmi/synapse-state/internal/idgen"
	"github.com/fabriziosalmi/synapse-state/internal/model"
)

// snapshotNode is a node record annotated for the renderer: a derived
// display identifier plus a deterministic layout hint spreading nodes
// evenly across the canvas.
type snapshotNode struct {
	ID        string  `json:"id"`
	DisplayID string  `json:"display_id"`
	StreamRef string  `json:"stream_ref"`
	Timestamp int64   `json:"timestamp"`
	CreatedAt int64   `json:"creation_timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// snapshot is the JSON document consumed by the renderer, written once per
// tick. Events pass through unmodified.
type snapshot struct {
	Nodes       []snapshotNode     `json:"nodes"`
	Connections []model.Connection `json:"connections"`
	Events      []model.Event      `json:"events"`
}

// Encode renders the world state as the exported snapshot document. Nodes
// arrive sorted by ID, so the layout positions are stable between ticks as
// long as membership does not change.
func Encode(ws model.WorldState) ([]byte, error) {
	nodes := make([]snapshotNode, 0, len(ws.Nodes))
	for i, n := range ws.Nodes {
		nodes = append(nodes, snapshotNode{
			ID:        n.ID,
			DisplayID: strings.TrimPrefix(n.ID, idgen.NodePrefix),
			StreamRef: n.StreamRef,
			Timestamp: n.Timestamp,
			CreatedAt: n.CreatedAt,
			X:         float64(i+1) / float64(len(ws.Nodes)+1),
			Y:         0.5,
		})
	}

	data, err := json.Marshal(snapshot{
		Nodes:       nodes,
		Connections: ws.Connections,
		Events:      ws.Events,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Destination receives the encoded snapshot (renderer state file, S3
// backup, ...).
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// FileDestination writes the snapshot to the renderer state path, using a
// temp file and rename so the renderer never observes a partial document.
type FileDestination struct {
	path string
}

func NewFileDestination(path string) *FileDestination {
	return &FileDestination{path: path}
}

func (d *FileDestination) Write(_ context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("mkdir for snapshot: %w", err)
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Exporter fans the snapshot out to every configured destination. One
// failing destination is logged and does not stop the others.
type Exporter struct {
	destinations []Destination
	logger       *slog.Logger
}

func NewExporter(destinations []Destination, logger *slog.Logger) *Exporter {
	return &Exporter{destinations: destinations, logger: logger}
}

func (e *Exporter) Export(ctx context.Context, ws model.WorldState) {
	data, err := Encode(ws)
	if err != nil {
		e.logger.Error("snapshot encode failed", "err", err)
		return
	}
	for i, dest := range e.destinations {
		if err := dest.Write(ctx, data); err != nil {
			e.logger.Error("snapshot export failed", "destination", fmt.Sprintf("%d", i), "err", err)
		}
	}
}
