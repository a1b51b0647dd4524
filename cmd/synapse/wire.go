package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fabriziosalmi/synapse-state/internal/config"
	"github.com/fabriziosalmi/synapse-state/internal/identity"
	"github.com/fabriziosalmi/synapse-state/internal/retry"
	"github.com/fabriziosalmi/synapse-state/internal/store"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// openStore builds the configured state store backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case "git":
		policy := retry.Policy{
			MaxAttempts: cfg.RetryAttempts,
			Backoff:     cfg.RetryBackoff,
		}
		return store.Open(ctx, cfg.RepoURL, cfg.LocalPath, cfg.Branch, policy, logger)
	case "s3":
		return store.OpenS3(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, cfg.S3Endpoint)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// loadIdentity resolves this node's stable identifier.
func loadIdentity(cfg *config.Config) (identity.Identity, error) {
	id, err := identity.Load(cfg.NodeID, cfg.IdentityFile)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("load node identity: %w", err)
	}
	return id, nil
}

// heartbeatAge formats how long ago a unix timestamp was, relative to now.
func heartbeatAge(ts int64, now time.Time) string {
	age := now.Sub(time.Unix(ts, 0)).Round(time.Second)
	if age < 0 {
		age = 0
	}
	return age.String() + " ago"
}
