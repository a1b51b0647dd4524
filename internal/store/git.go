package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fabriziosalmi/synapse-state/internal/retry"
)

// GitStore replicates state through a git repository. Every node holds a
// full clone; writes land as commits and reach other nodes on their next
// pull. Conflicting pushes are rejected by the remote and resolved by
// pulling and retrying, so the last writer wins per file.
type GitStore struct {
	remote string
	dir    string
	branch string
	policy retry.Policy
	logger *slog.Logger
}

// Open clones the remote into dir when no working copy exists there,
// otherwise opens the existing one. A clone failure after retries is
// returned to the caller, which treats it as fatal to startup.
func Open(ctx context.Context, remote, dir, branch string, policy retry.Policy, logger *slog.Logger) (*GitStore, error) {
	s := &GitStore{
		remote: remote,
		dir:    dir,
		branch: branch,
		policy: policy,
		logger: logger,
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		logger.Info("opened existing working copy", "dir", dir)
		return s, nil
	}

	logger.Info("cloning state repository", "remote", remote, "dir", dir)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(dir), err)
	}
	err := policy.Do(ctx, logger, "clone", func() error {
		return runGit(ctx, filepath.Dir(dir), "clone", "--branch", branch, remote, dir)
	})
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", remote, err)
	}
	return s, nil
}

// Dir returns the path of the local working copy.
func (s *GitStore) Dir() string { return s.dir }

// GetAll reads every regular file under dir/prefix. A missing prefix
// directory means no keys yet, not an error.
func (s *GitStore) GetAll(_ context.Context, prefix string) (map[string][]byte, error) {
	root := filepath.Join(s.dir, filepath.FromSlash(prefix))
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	out := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s/%s: %w", prefix, entry.Name(), err)
		}
		out[prefix+"/"+entry.Name()] = data
	}
	return out, nil
}

// Put writes the file into the working copy and stages it.
func (s *GitStore) Put(ctx context.Context, key string, value []byte) error {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", key, err)
	}
	if err := os.WriteFile(path, value, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := s.git(ctx, "add", "--", key); err != nil {
		return fmt.Errorf("stage %s: %w", key, err)
	}
	return nil
}

// Delete removes the file from the working tree and index. A key that is
// already gone is a no-op, which keeps concurrent reaps across nodes safe.
func (s *GitStore) Delete(ctx context.Context, key string) error {
	if err := s.git(ctx, "rm", "-q", "--ignore-unmatch", "--", key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Sync pulls remote changes into the working copy, retrying per policy.
// Merge behavior is git's own; divergence from a previously rejected push
// resolves here.
func (s *GitStore) Sync(ctx context.Context) error {
	return s.policy.Do(ctx, s.logger, "pull", func() error {
		return s.git(ctx, "pull", "--no-rebase", "origin", s.branch)
	})
}

// Flush commits staged changes and pushes. With a clean index it returns
// immediately; a no-op commit is never created.
func (s *GitStore) Flush(ctx context.Context, message string) error {
	if err := s.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		return nil
	}

	if err := s.git(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	err := s.policy.Do(ctx, s.logger, "push", func() error {
		return s.git(ctx, "push", "origin", s.branch)
	})
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

func (s *GitStore) git(ctx context.Context, args ...string) error {
	return runGit(ctx, s.dir, args...)
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
