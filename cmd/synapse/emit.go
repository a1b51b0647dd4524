package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fabriziosalmi/synapse-state/internal/config"
	"github.com/fabriziosalmi/synapse-state/internal/eventbus"
)

var (
	emitTTL  time.Duration
	emitData string
)

var emitCmd = &cobra.Command{
	Use:   "emit <type>",
	Short: "Publish a broadcast event to the mesh",
	Long: `Publish a broadcast event of the given type (an open string tag,
e.g. directed-signal) to the shared state repository. The event expires
after its TTL and is reaped lazily by whichever node next holds the
write turn.`,
	Args: cobra.ExactArgs(1),
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

		var payload json.RawMessage
		if emitData != "" {
			if !json.Valid([]byte(emitData)) {
				return fmt.Errorf("--data is not valid JSON")
			}
			payload = json.RawMessage(emitData)
		}

		ctx := context.Background()
		st, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}

		var mirror eventbus.Publisher
		if cfg.NATSURL != "" {
			pub, err := eventbus.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			defer pub.Close()
			mirror = pub
		}

		bus := eventbus.New(st, id.NodeID, mirror, logger)
		ev, err := bus.Publish(ctx, args[0], payload, int64(emitTTL/time.Second), time.Now())
		if err != nil {
			return err
		}
		fmt.Println(ev.ID)
		return nil
	},
}

func init() {
	emitCmd.Flags().DurationVar(&emitTTL, "ttl", 2*time.Minute, "how long the event stays live")
	emitCmd.Flags().StringVar(&emitData, "data", "", "JSON payload attached to the event")
}
