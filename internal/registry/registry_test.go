package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"
)

// fakeStore is an in-memory store.Store for registry tests.
type fakeStore struct {
	data map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]byte{}}
}

func (f *fakeStore) GetAll(_ context.Context, prefix string) (map[string][]byte, error) {
	out := map[string][]byte{}
	for k, v := range f.data {
		if len(k) > len(prefix) && k[:len(prefix)+1] == prefix+"/" {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakeStore) Put(_ context.Context, key string, value []byte) error {
	f.data[key] = value
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeStore) Sync(context.Context) error          { return nil }
func (f *fakeStore) Flush(context.Context, string) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestWriteSelf_PreservesCreationTimestamp(t *testing.T) {
	fs := newFakeStore()
	r := New(fs, "node-self", testLogger())
	ctx := context.Background()

	key, err := r.WriteSelf(ctx, "stream-1", time.Unix(100, 0))
	if err != nil {
		t.Fatalf("first WriteSelf: %v", err)
	}
	if key != "nodes/node-self.json" {
		t.Errorf("key = %q, want nodes/node-self.json", key)
	}

	if _, err := r.WriteSelf(ctx, "stream-1", time.Unix(200, 0)); err != nil {
		t.Fatalf("second WriteSelf: %v", err)
	}

	nodes, err := r.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("len(nodes) = %d, want 1", len(nodes))
	}
	if nodes[0].CreatedAt != 100 {
		t.Errorf("CreatedAt = %d, want 100 (preserved from first write)", nodes[0].CreatedAt)
	}
	if nodes[0].Timestamp != 200 {
		t.Errorf("Timestamp = %d, want 200 (refreshed heartbeat)", nodes[0].Timestamp)
	}
}

func TestReadAll_SkipsMalformed(t *testing.T) {
	fs := newFakeStore()
	fs.data["nodes/node-good.json"] = []byte(`{"stream_ref":"s1","timestamp":100,"creation_timestamp":50}`)
	fs.data["nodes/node-bad.json"] = []byte(`{not json`)

	r := New(fs, "node-self", testLogger())
	nodes, err := r.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("len(nodes) = %d, want 1 (malformed skipped)", len(nodes))
	}
	if nodes[0].ID != "node-good" {
		t.Errorf("ID = %q, want node-good", nodes[0].ID)
	}
	if nodes[0].StreamRef != "s1" || nodes[0].Timestamp != 100 || nodes[0].CreatedAt != 50 {
		t.Errorf("unexpected record: %+v", nodes[0])
	}
}

func TestReadAll_SortedByID(t *testing.T) {
	fs := newFakeStore()
	for _, id := range []string{"node-c", "node-a", "node-b"} {
		fs.data["nodes/"+id+".json"] = []byte(`{"stream_ref":"s","timestamp":1,"creation_timestamp":1}`)
	}

	r := New(fs, "node-a", testLogger())
	nodes, err := r.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := []string{"node-a", "node-b", "node-c"}
	for i, id := range want {
		if nodes[i].ID != id {
			t.Fatalf("nodes[%d].ID = %q, want %q (full: %+v)", i, nodes[i].ID, id, nodes)
		}
	}
}

func TestWriteSelf_WireFormat(t *testing.T) {
	fs := newFakeStore()
	r := New(fs, "node-self", testLogger())

	if _, err := r.WriteSelf(context.Background(), "yt-broadcast-9", time.Unix(42, 0)); err != nil {
		t.Fatalf("WriteSelf: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(fs.data["nodes/node-self.json"], &got); err != nil {
		t.Fatalf("unmarshal written record: %v", err)
	}
	for _, field := range []string{"stream_ref", "timestamp", "creation_timestamp"} {
		if _, ok := got[field]; !ok {
			t.Errorf("written record missing %q: %v", field, got)
		}
	}
	if got["stream_ref"] != "yt-broadcast-9" {
		t.Errorf("stream_ref = %v, want yt-broadcast-9", got["stream_ref"])
	}
}
