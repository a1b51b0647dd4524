// Package config loads node configuration from SYNAPSE_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Node identity
	NodeID       string // SYNAPSE_NODE_ID (optional; generated once and persisted when empty)
	IdentityFile string // SYNAPSE_IDENTITY_FILE (default "~/.local/state/synapse/identity.toml")

	// State store
	StoreBackend string // SYNAPSE_STORE_BACKEND ("git" or "s3", default "git")
	RepoURL      string // SYNAPSE_GIT_REPO_URL (required for the git backend)
	LocalPath    string // SYNAPSE_LOCAL_REPO_PATH (default "synapse-state-repo")
	Branch       string // SYNAPSE_GIT_BRANCH (default "main")
	S3Bucket     string // SYNAPSE_S3_BUCKET (required for the s3 backend)
	S3Prefix     string // SYNAPSE_S3_PREFIX (optional key prefix)
	S3Region     string // SYNAPSE_S3_REGION (default "us-east-1")
	S3Endpoint   string // SYNAPSE_S3_ENDPOINT (custom endpoint for MinIO)

	// Coordination
	SyncInterval   time.Duration // SYNAPSE_SYNC_INTERVAL (default 30s)
	SignalCooldown time.Duration // SYNAPSE_SIGNAL_COOLDOWN (default 5m)
	RetryAttempts  int           // SYNAPSE_RETRY_ATTEMPTS (default 3)
	RetryBackoff   time.Duration // SYNAPSE_RETRY_BACKOFF (default 2s)

	// Renderer interface
	StateFile    string // SYNAPSE_RENDERER_STATE_FILE (default "renderer/state.json")
	RendererDir  string // SYNAPSE_RENDERER_DIR (default "renderer")
	RendererAddr string // SYNAPSE_RENDERER_ADDR (default "127.0.0.1:8000")

	// Snapshot backup (enabled when the key is set; uses the S3 settings above)
	SnapshotS3Key string // SYNAPSE_SNAPSHOT_S3_KEY

	// Event mirror
	NATSURL string // SYNAPSE_NATS_URL (optional, empty = no mirror)

	// Streaming
	IngestURL       string // SYNAPSE_STREAM_INGEST_URL (optional, empty = streaming disabled)
	StreamRef       string // SYNAPSE_STREAM_REF (broadcast identifier published as stream_ref)
	StreamWidth     int    // SYNAPSE_STREAM_WIDTH (default 1280)
	StreamHeight    int    // SYNAPSE_STREAM_HEIGHT (default 720)
	StreamFramerate int    // SYNAPSE_STREAM_FRAMERATE (default 30)
	StreamBitrate   string // SYNAPSE_STREAM_BITRATE (default "6000k")
	StreamPreset    string // SYNAPSE_STREAM_PRESET (default "ultrafast")
}

func Load() (*Config, error) {
	c := &Config{
		NodeID:        os.Getenv("SYNAPSE_NODE_ID"),
		IdentityFile:  os.Getenv("SYNAPSE_IDENTITY_FILE"),
		StoreBackend:  envOrDefault("SYNAPSE_STORE_BACKEND", "git"),
		RepoURL:       os.Getenv("SYNAPSE_GIT_REPO_URL"),
		LocalPath:     envOrDefault("SYNAPSE_LOCAL_REPO_PATH", "synapse-state-repo"),
		Branch:        envOrDefault("SYNAPSE_GIT_BRANCH", "main"),
		S3Bucket:      os.Getenv("SYNAPSE_S3_BUCKET"),
		S3Prefix:      os.Getenv("SYNAPSE_S3_PREFIX"),
		S3Region:      envOrDefault("SYNAPSE_S3_REGION", "us-east-1"),
		S3Endpoint:    os.Getenv("SYNAPSE_S3_ENDPOINT"),
		StateFile:     envOrDefault("SYNAPSE_RENDERER_STATE_FILE", "renderer/state.json"),
		RendererDir:   envOrDefault("SYNAPSE_RENDERER_DIR", "renderer"),
		RendererAddr:  envOrDefault("SYNAPSE_RENDERER_ADDR", "127.0.0.1:8000"),
		SnapshotS3Key: os.Getenv("SYNAPSE_SNAPSHOT_S3_KEY"),
		NATSURL:       os.Getenv("SYNAPSE_NATS_URL"),
		IngestURL:     os.Getenv("SYNAPSE_STREAM_INGEST_URL"),
		StreamRef:     os.Getenv("SYNAPSE_STREAM_REF"),
		StreamBitrate: envOrDefault("SYNAPSE_STREAM_BITRATE", "6000k"),
		StreamPreset:  envOrDefault("SYNAPSE_STREAM_PRESET", "ultrafast"),
	}

	var err error
	if c.SyncInterval, err = envDuration("SYNAPSE_SYNC_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if c.SignalCooldown, err = envDuration("SYNAPSE_SIGNAL_COOLDOWN", 5*time.Minute); err != nil {
		return nil, err
	}
	if c.RetryBackoff, err = envDuration("SYNAPSE_RETRY_BACKOFF", 2*time.Second); err != nil {
		return nil, err
	}
	if c.RetryAttempts, err = envInt("SYNAPSE_RETRY_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if c.StreamWidth, err = envInt("SYNAPSE_STREAM_WIDTH", 1280); err != nil {
		return nil, err
	}
	if c.StreamHeight, err = envInt("SYNAPSE_STREAM_HEIGHT", 720); err != nil {
		return nil, err
	}
	if c.StreamFramerate, err = envInt("SYNAPSE_STREAM_FRAMERATE", 30); err != nil {
		return nil, err
	}

	switch c.StoreBackend {
	case "git":
		if c.RepoURL == "" {
			return nil, fmt.Errorf("SYNAPSE_GIT_REPO_URL is required")
		}
	case "s3":
		if c.S3Bucket == "" {
			return nil, fmt.Errorf("SYNAPSE_S3_BUCKET is required for the s3 backend")
		}
	default:
		return nil, fmt.Errorf("SYNAPSE_STORE_BACKEND: unknown backend %q", c.StoreBackend)
	}

	if c.SyncInterval <= 0 {
		return nil, fmt.Errorf("SYNAPSE_SYNC_INTERVAL must be positive")
	}
	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
