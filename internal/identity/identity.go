// Package identity gives each node a stable identifier: read from
// configuration when set, otherwise generated once and persisted to a
// state file so restarts keep the same presence record.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fabriziosalmi/synapse-state/internal/idgen"
)

// Identity is the persisted node identity.
type Identity struct {
	NodeID    string    `toml:"node_id"`
	CreatedAt time.Time `toml:"created_at"`
}

// DefaultPath returns the default identity file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "synapse", "identity.toml"), nil
}

// Load resolves the node identity. A configured ID wins and is never
// persisted; otherwise the identity file is read, or created with a fresh
// generated ID on first run. path may be empty to use DefaultPath.
func Load(configuredID, path string) (Identity, error) {
	if configuredID != "" {
		return Identity{NodeID: configuredID}, nil
	}

	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return Identity{}, fmt.Errorf("resolve identity path: %w", err)
		}
	}

	var id Identity
	if _, err := toml.DecodeFile(path, &id); err == nil && id.NodeID != "" {
		return id, nil
	} else if err != nil && !os.IsNotExist(err) {
		return Identity{}, fmt.Errorf("read identity file %s: %w", path, err)
	}

	nodeID, err := idgen.NewNodeID()
	if err != nil {
		return Identity{}, err
	}
	id = Identity{NodeID: nodeID, CreatedAt: time.Now().UTC()}
	if err := save(path, id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func save(path string, id Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir identity dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create identity file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(id); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	return nil
}
