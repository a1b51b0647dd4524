// Package coord runs the per-node coordination loop: sync, reap, build,
// export, and, when this node holds the write turn, heartbeat and flush.
package coord

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/fabriziosalmi/synapse-state/internal/eventbus"
	"github.com/fabriziosalmi/synapse-state/internal/model"
	"github.com/fabriziosalmi/synapse-state/internal/registry"
	"github.com/fabriziosalmi/synapse-state/internal/store"
	"github.com/fabriziosalmi/synapse-state/internal/turn"
	"github.com/fabriziosalmi/synapse-state/internal/worldstate"
)

// joinEventTTL bounds how long a node-joined announcement stays visible,
// in seconds.
const joinEventTTL = 300

// Loop drives one node through the coordination cycle on a fixed period.
// It is the only goroutine that touches the working copy, so ticks never
// overlap and every repository operation is plain blocking I/O.
type Loop struct {
	store    store.Store
	registry *registry.Registry
	bus      *eventbus.Bus
	builder  *worldstate.Builder
	exporter *worldstate.Exporter

	self      string
	streamRef string
	interval  time.Duration
	cooldown  time.Duration
	logger    *slog.Logger

	now func() time.Time // injectable clock

	lastSignal time.Time
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

type Options struct {
	Store     store.Store
	Registry  *registry.Registry
	Bus       *eventbus.Bus
	Builder   *worldstate.Builder
	Exporter  *worldstate.Exporter
	Self      string
	StreamRef string
	Interval  time.Duration
	Cooldown  time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(opts Options) *Loop {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Loop{
		store:     opts.Store,
		registry:  opts.Registry,
		bus:       opts.Bus,
		builder:   opts.Builder,
		exporter:  opts.Exporter,
		self:      opts.Self,
		streamRef: opts.StreamRef,
		interval:  opts.Interval,
		cooldown:  opts.Cooldown,
		logger:    opts.Logger,
		now:       now,
	}
}

// Start begins the loop in a background goroutine: one startup pass
// (sync, build, export, join announcement), then steady ticks.
func (l *Loop) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(ctx)
	}()
}

// Stop requests shutdown and waits for the in-flight tick to finish.
// Cancellation lands between ticks or between retry attempts; a git
// operation already running completes first.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	l.startup(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// startup performs the initial sync, creates this node's record, and
// announces its arrival. Both bypass turn authorization: a node absent
// from the aggregate could never win a turn to write its first record,
// and joins are rare enough that the conflict risk is accepted.
func (l *Loop) startup(ctx context.Context) {
	if err := l.store.Sync(ctx); err != nil {
		l.logger.Warn("initial sync failed, starting from local state", "err", err)
	}
	if ws, err := l.builder.Build(ctx); err != nil {
		l.logger.Error("initial build failed", "err", err)
	} else {
		l.exporter.Export(ctx, ws)
	}

	now := l.now()
	if _, err := l.registry.WriteSelf(ctx, l.streamRef, now); err != nil {
		l.logger.Error("initial record write failed", "err", err)
	}
	payload, _ := json.Marshal(map[string]string{"stream_ref": l.streamRef})
	if _, err := l.bus.Append(ctx, model.EventNodeJoined, payload, joinEventTTL, now); err != nil {
		l.logger.Warn("join announcement failed", "err", err)
	}
	if err := l.store.Flush(ctx, "node "+l.self+" joined"); err != nil {
		l.logger.Warn("join flush failed, retrying on first turn", "err", err)
	}
	l.logger.Info("node started", "node", l.self, "interval", l.interval)
}

// tick is one full pass of the coordination cycle. Every failure inside a
// tick is logged and skipped; the loop never dies mid-flight.
func (l *Loop) tick(ctx context.Context) {
	now := l.now()

	if err := l.store.Sync(ctx); err != nil {
		l.logger.Warn("sync failed, ticking on stale state", "err", err)
	}

	l.bus.ReapExpired(ctx, now)

	ws, err := l.builder.Build(ctx)
	if err != nil {
		l.logger.Error("world state build failed", "err", err)
		return
	}
	l.exporter.Export(ctx, ws)

	ids := turn.Order(ws.Nodes)
	if !turn.IsMyTurn(ids, l.self, now, l.interval) {
		// Not our slice. A node missing from its own aggregate also lands
		// here and waits for its startup record to replicate.
		if holder, ok := turn.Authorized(ids, now, l.interval); ok {
			l.logger.Debug("deferring write turn", "holder", holder, "nodes", len(ids))
		}
		return
	}

	if _, err := l.registry.WriteSelf(ctx, l.streamRef, now); err != nil {
		l.logger.Error("heartbeat write failed", "err", err)
		return
	}

	if l.cooldown > 0 && now.Sub(l.lastSignal) >= l.cooldown {
		if _, err := l.bus.Append(ctx, model.EventPresence, nil, int64(l.cooldown/time.Second), now); err != nil {
			l.logger.Warn("presence event failed", "err", err)
		} else {
			l.lastSignal = now
		}
	}

	if err := l.store.Flush(ctx, "heartbeat from "+l.self); err != nil {
		l.logger.Warn("flush failed, retrying next turn", "err", err)
	}
}
