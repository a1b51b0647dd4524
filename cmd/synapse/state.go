package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fabriziosalmi/synapse-state/internal/config"
	"github.com/fabriziosalmi/synapse-state/internal/eventbus"
	"github.com/fabriziosalmi/synapse-state/internal/registry"
	"github.com/fabriziosalmi/synapse-state/internal/ui"
	"github.com/fabriziosalmi/synapse-state/internal/worldstate"
)

// staleAfter is when a node's heartbeat is displayed as stale. Records are
// never removed, so this is presentation only.
const staleAfter = 5 * time.Minute

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Sync once and print the aggregated world state",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		id, err := loadIdentity(cfg)
		if err != nil {
			return err
		}

		ctx := context.Background()
		st, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if err := st.Sync(ctx); err != nil {
			logger.Warn("sync failed, showing local state", "err", err)
		}

		reg := registry.New(st, id.NodeID, logger)
		bus := eventbus.New(st, id.NodeID, nil, logger)
		ws, err := worldstate.NewBuilder(reg, bus).Build(ctx)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ws)
		}

		now := time.Now()
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)

		fmt.Fprintf(w, "NODE\tSTREAM\tHEARTBEAT\t\n")
		for _, n := range ws.Nodes {
			name := ui.RenderAccent(n.ID)
			if n.ID == id.NodeID {
				name += " (self)"
			}
			age := heartbeatAge(n.Timestamp, now)
			if now.Sub(time.Unix(n.Timestamp, 0)) > staleAfter {
				age = ui.RenderMuted(age + " (stale)")
			} else {
				age = ui.RenderLive(age)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", name, n.StreamRef, age)
		}

		fmt.Fprintf(w, "\nEVENT\tFROM\tAGE\t\n")
		for _, ev := range ws.Events {
			age := heartbeatAge(ev.Timestamp, now)
			if ev.Expired(now) {
				age = ui.RenderMuted(age + " (expired)")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", ev.Type, ev.NodeID, age)
		}
		return w.Flush()
	},
}
