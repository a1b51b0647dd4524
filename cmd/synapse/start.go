package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fabriziosalmi/synapse-state/internal/config"
	"github.com/fabriziosalmi/synapse-state/internal/coord"
	"github.com/fabriziosalmi/synapse-state/internal/eventbus"
	"github.com/fabriziosalmi/synapse-state/internal/registry"
	"github.com/fabriziosalmi/synapse-state/internal/stream"
	"github.com/fabriziosalmi/synapse-state/internal/streamer"
	"github.com/fabriziosalmi/synapse-state/internal/worldstate"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coordination node",
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
		logger.Info("starting node", "node", id.NodeID, "backend", cfg.StoreBackend)

		ctx := context.Background()

		// Repository initialization failure is the one unrecoverable error:
		// without a working copy the node cannot participate at all.
		st, err := openStore(ctx, cfg, logger)
		if err != nil {
			logger.Error("state store initialization failed, cannot start", "err", err)
			return err
		}

		// Resolve the outbound stream endpoint. The provider flow itself is
		// external; a missing endpoint just means this node does not stream.
		provider := stream.NewStaticProvider(cfg.IngestURL, cfg.StreamRef)
		info, err := provider.EnsureStream(ctx)
		if err != nil {
			return err
		}

		var mirror eventbus.Publisher
		if cfg.NATSURL != "" {
			pub, err := eventbus.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			mirror = pub
			logger.Info("event mirror enabled", "nats_url", cfg.NATSURL)
		} else {
			mirror = &eventbus.NoopPublisher{}
		}
		defer mirror.Close()

		reg := registry.New(st, id.NodeID, logger)
		bus := eventbus.New(st, id.NodeID, mirror, logger)

		dests := []worldstate.Destination{worldstate.NewFileDestination(cfg.StateFile)}
		if cfg.SnapshotS3Key != "" && cfg.S3Bucket != "" {
			s3Dest, err := worldstate.NewS3Destination(ctx, cfg.S3Bucket, cfg.SnapshotS3Key, cfg.S3Region, cfg.S3Endpoint)
			if err != nil {
				logger.Error("snapshot S3 destination unavailable", "err", err)
			} else {
				dests = append(dests, s3Dest)
				logger.Info("snapshot S3 backup enabled", "bucket", cfg.S3Bucket, "key", cfg.SnapshotS3Key)
			}
		}

		engine := streamer.New(streamer.Config{
			IngestURL:   info.IngestURL,
			Width:       cfg.StreamWidth,
			Height:      cfg.StreamHeight,
			Framerate:   cfg.StreamFramerate,
			Bitrate:     cfg.StreamBitrate,
			Preset:      cfg.StreamPreset,
			RendererDir: cfg.RendererDir,
			StateFile:   cfg.StateFile,
			HTTPAddr:    cfg.RendererAddr,
		}, logger)
		if err := engine.Start(ctx); err != nil {
			return err
		}

		loop := coord.New(coord.Options{
			Store:     st,
			Registry:  reg,
			Bus:       bus,
			Builder:   worldstate.NewBuilder(reg, bus),
			Exporter:  worldstate.NewExporter(dests, logger),
			Self:      id.NodeID,
			StreamRef: info.StreamRef,
			Interval:  cfg.SyncInterval,
			Cooldown:  cfg.SignalCooldown,
			Logger:    logger,
		})
		loop.Start()

		// Block until shutdown is requested, then stop in reverse order:
		// the loop first (lets the in-flight git operation finish), then
		// the encoder and renderer server.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())

		loop.Stop()

		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := engine.Stop(stopCtx); err != nil {
			logger.Warn("streamer shutdown", "err", err)
		}

		logger.Info("node stopped", "node", id.NodeID)
		return nil
	},
}
