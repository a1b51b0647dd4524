// Package worldstate aggregates node records and events into one immutable
// snapshot per tick and exports it for external renderers.
package worldstate

import (
	"context"
	"fmt"

	"github.com/fabriziosalmi/synapse-state/internal/eventbus"
	"github.com/fabriziosalmi/synapse-state/internal/model"
	"github.com/fabriziosalmi/synapse-state/internal/registry"
)

// Builder assembles the world state from the repository working copy.
// It holds no state of its own: every Build re-reads everything, so the
// snapshot always reflects the latest successful sync.
type Builder struct {
	registry *registry.Registry
	bus      *eventbus.Bus
}

func NewBuilder(reg *registry.Registry, bus *eventbus.Bus) *Builder {
	return &Builder{registry: reg, bus: bus}
}

// Build reads all node records and all events and assembles the aggregate.
// Expired events are deliberately included: filtering is the presentation
// layer's job, which keeps recently-expired events inspectable.
func (b *Builder) Build(ctx context.Context) (model.WorldState, error) {
	nodes, err := b.registry.ReadAll(ctx)
	if err != nil {
		return model.WorldState{}, fmt.Errorf("build world state: %w", err)
	}
	events, err := b.bus.ReadAll(ctx)
	if err != nil {
		return model.WorldState{}, fmt.Errorf("build world state: %w", err)
	}
	return model.WorldState{
		Nodes:       nodes,
		Connections: []model.Connection{},
		Events:      events,
	}, nil
}
