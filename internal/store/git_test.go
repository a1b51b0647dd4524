package store

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/fabriziosalmi/synapse-state/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, Backoff: 10 * time.Millisecond}
}

// newTestRemote creates a bare repo with an initial commit on main and
// returns its path.
func newTestRemote(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	remoteDir := t.TempDir()
	run(t, remoteDir, "git", "init", "--bare", "--initial-branch=main")

	// Seed the remote with an initial commit so clones have a branch.
	seedDir := filepath.Join(t.TempDir(), "seed")
	run(t, filepath.Dir(seedDir), "git", "clone", remoteDir, seedDir)
	configureIdentity(t, seedDir)
	if err := os.WriteFile(filepath.Join(seedDir, ".gitkeep"), nil, 0o644); err != nil {
		t.Fatalf("write .gitkeep: %v", err)
	}
	run(t, seedDir, "git", "add", ".")
	run(t, seedDir, "git", "commit", "-m", "init")
	run(t, seedDir, "git", "push", "origin", "main")
	return remoteDir
}

func configureIdentity(t *testing.T, repoDir string) {
	t.Helper()
	run(t, repoDir, "git", "config", "user.email", "test@test.com")
	run(t, repoDir, "git", "config", "user.name", "Test")
}

func openTestStore(t *testing.T, remote string) *GitStore {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "clone")
	s, err := Open(context.Background(), remote, dir, "main", testPolicy(), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	configureIdentity(t, dir)
	return s
}

func TestOpen_ClonesWhenAbsent(t *testing.T) {
	remote := newTestRemote(t)
	s := openTestStore(t, remote)

	if _, err := os.Stat(filepath.Join(s.Dir(), ".git")); err != nil {
		t.Fatalf("expected a working copy at %s: %v", s.Dir(), err)
	}

	// Reopening the same path must not re-clone.
	if _, err := Open(context.Background(), remote, s.Dir(), "main", testPolicy(), testLogger()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

func TestOpen_CloneFailure(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}
	dir := filepath.Join(t.TempDir(), "clone")
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "no-such-remote"), dir, "main", testPolicy(), testLogger())
	if err == nil {
		t.Fatal("expected clone of a missing remote to fail")
	}
}

func TestPutFlushGetAll(t *testing.T) {
	remote := newTestRemote(t)
	s := openTestStore(t, remote)
	ctx := context.Background()

	if err := s.Put(ctx, "nodes/node-a.json", []byte(`{"stream_ref":"s1"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Flush(ctx, "heartbeat from node-a"); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// A second clone must observe the write after Sync.
	other := openTestStore(t, remote)
	if err := other.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	got, err := other.GetAll(ctx, "nodes")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if string(got["nodes/node-a.json"]) != `{"stream_ref":"s1"}` {
		t.Fatalf("GetAll = %v, want node-a record", got)
	}
}

func TestFlush_NoopWhenClean(t *testing.T) {
	remote := newTestRemote(t)
	s := openTestStore(t, remote)
	ctx := context.Background()

	if err := s.Flush(ctx, "nothing staged"); err != nil {
		t.Fatalf("Flush with clean index: %v", err)
	}

	// Re-putting identical content stages nothing new after a flush.
	if err := s.Put(ctx, "nodes/node-a.json", []byte(`{}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Flush(ctx, "first"); err != nil {
		t.Fatalf("first Flush: %v", err)
	}
	if err := s.Put(ctx, "nodes/node-a.json", []byte(`{}`)); err != nil {
		t.Fatalf("identical Put: %v", err)
	}
	if err := s.Flush(ctx, "second"); err != nil {
		t.Fatalf("no-op Flush: %v", err)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	remote := newTestRemote(t)
	s := openTestStore(t, remote)
	ctx := context.Background()

	if err := s.Put(ctx, "events/ev-1.json", []byte(`{"id":"ev-1"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Flush(ctx, "publish ev-1"); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := s.Delete(ctx, "events/ev-1.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deleting again must be a no-op.
	if err := s.Delete(ctx, "events/ev-1.json"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if err := s.Flush(ctx, "reap ev-1"); err != nil {
		t.Fatalf("Flush after delete: %v", err)
	}

	got, err := s.GetAll(ctx, "events")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no events after delete, got %v", got)
	}
}

func TestGetAll_MissingPrefix(t *testing.T) {
	remote := newTestRemote(t)
	s := openTestStore(t, remote)

	got, err := s.GetAll(context.Background(), "events")
	if err != nil {
		t.Fatalf("GetAll on missing prefix: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func run(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("%s %v failed: %v", name, args, err)
	}
}
