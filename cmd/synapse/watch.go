package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fabriziosalmi/synapse-state/internal/config"
	"github.com/fabriziosalmi/synapse-state/internal/eventbus"
)

var watchSubject string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream mirrored events from the local NATS mirror",
	Long: `Subscribe to the node's local NATS event mirror and print each
event as it is published. Requires SYNAPSE_NATS_URL and a running node
with the mirror enabled; only events published through this node are
mirrored, not the whole mesh.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.NATSURL == "" {
			return fmt.Errorf("SYNAPSE_NATS_URL is not set")
		}

		sub, err := eventbus.NewNATSSubscriber(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(watchSubject)
		if err != nil {
			return err
		}
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case raw, ok := <-ch:
				if !ok {
					return nil
				}
				fmt.Println(string(raw))
			case <-sigCh:
				return nil
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchSubject, "subject", "synapse.event.>", "NATS subject filter")
}
