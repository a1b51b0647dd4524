package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

// fakeStore is an in-memory store.Store that counts flushes and can fail
// deletes on demand.
type fakeStore struct {
	data       map[string][]byte
	flushes    int
	failDelete map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]byte{}, failDelete: map[string]error{}}
}

func (f *fakeStore) GetAll(_ context.Context, prefix string) (map[string][]byte, error) {
	out := map[string][]byte{}
	for k, v := range f.data {
		if strings.HasPrefix(k, prefix+"/") {
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
	if err := f.failDelete[key]; err != nil {
		return err
	}
	delete(f.data, key)
	return nil
}

func (f *fakeStore) Sync(context.Context) error { return nil }

func (f *fakeStore) Flush(context.Context, string) error {
	f.flushes++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestPublish_WritesAndFlushes(t *testing.T) {
	fs := newFakeStore()
	bus := New(fs, "node-a", nil, testLogger())

	ev, err := bus.Publish(context.Background(), "directed-signal", json.RawMessage(`{"to":"node-b"}`), 60, time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ev.ID != "directed-signal-node-a-1000" {
		t.Errorf("ID = %q, want directed-signal-node-a-1000", ev.ID)
	}
	if fs.flushes != 1 {
		t.Errorf("flushes = %d, want 1", fs.flushes)
	}

	data, ok := fs.data["events/directed-signal-node-a-1000.json"]
	if !ok {
		t.Fatalf("event file not written; store: %v", fs.data)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal written event: %v", err)
	}
	for _, field := range []string{"id", "type", "node_id", "timestamp", "ttl", "data"} {
		if _, ok := got[field]; !ok {
			t.Errorf("written event missing %q: %v", field, got)
		}
	}
}

func TestAppend_DoesNotFlush(t *testing.T) {
	fs := newFakeStore()
	bus := New(fs, "node-a", nil, testLogger())

	if _, err := bus.Append(context.Background(), "presence-announcement", nil, 120, time.Unix(5, 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if fs.flushes != 0 {
		t.Errorf("flushes = %d, want 0 (Append stages only)", fs.flushes)
	}
}

func TestReadAll_SkipsMalformed(t *testing.T) {
	fs := newFakeStore()
	fs.data["events/good-node-a-1.json"] = []byte(`{"id":"good-node-a-1","type":"good","node_id":"node-a","timestamp":1,"ttl":10}`)
	fs.data["events/bad.json"] = []byte(`not json at all`)

	bus := New(fs, "node-a", nil, testLogger())
	events, err := bus.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 1 || events[0].ID != "good-node-a-1" {
		t.Fatalf("events = %+v, want just good-node-a-1", events)
	}
}

func TestReapExpired_TTLBoundary(t *testing.T) {
	// ttl=10 published at t=0: present at t=9, reaped at t=11.
	mk := func() *fakeStore {
		fs := newFakeStore()
		ev := `{"id":"ping-node-a-0","type":"ping","node_id":"node-a","timestamp":0,"ttl":10}`
		fs.data["events/ping-node-a-0.json"] = []byte(ev)
		return fs
	}

	fs := mk()
	bus := New(fs, "node-b", nil, testLogger())
	if reaped := bus.ReapExpired(context.Background(), time.Unix(9, 0)); len(reaped) != 0 {
		t.Errorf("reaped at t=9: %v, want none", reaped)
	}
	if _, ok := fs.data["events/ping-node-a-0.json"]; !ok {
		t.Error("event removed before expiry")
	}

	fs = mk()
	bus = New(fs, "node-b", nil, testLogger())
	reaped := bus.ReapExpired(context.Background(), time.Unix(11, 0))
	if len(reaped) != 1 || reaped[0] != "ping-node-a-0" {
		t.Errorf("reaped at t=11: %v, want [ping-node-a-0]", reaped)
	}
	if _, ok := fs.data["events/ping-node-a-0.json"]; ok {
		t.Error("expired event still present after reap")
	}
}

func TestReapExpired_Idempotent(t *testing.T) {
	fs := newFakeStore()
	fs.data["events/ping-node-a-0.json"] = []byte(`{"id":"ping-node-a-0","type":"ping","node_id":"node-a","timestamp":0,"ttl":1}`)

	bus := New(fs, "node-b", nil, testLogger())
	now := time.Unix(100, 0)
	if reaped := bus.ReapExpired(context.Background(), now); len(reaped) != 1 {
		t.Fatalf("first reap: %v", reaped)
	}
	if reaped := bus.ReapExpired(context.Background(), now); len(reaped) != 0 {
		t.Fatalf("second reap should find nothing, got %v", reaped)
	}
}

func TestReapExpired_DeleteFailureIsTolerated(t *testing.T) {
	fs := newFakeStore()
	fs.data["events/ping-node-a-0.json"] = []byte(`{"id":"ping-node-a-0","type":"ping","node_id":"node-a","timestamp":0,"ttl":1}`)
	fs.data["events/pong-node-a-0.json"] = []byte(`{"id":"pong-node-a-0","type":"pong","node_id":"node-a","timestamp":0,"ttl":1}`)
	fs.failDelete["events/ping-node-a-0.json"] = errors.New("permission denied")

	bus := New(fs, "node-b", nil, testLogger())
	reaped := bus.ReapExpired(context.Background(), time.Unix(100, 0))
	if len(reaped) != 1 || reaped[0] != "pong-node-a-0" {
		t.Fatalf("reaped = %v, want [pong-node-a-0] despite the failed delete", reaped)
	}

	// The failed file stays for a later sweep.
	if _, ok := fs.data["events/ping-node-a-0.json"]; !ok {
		t.Error("failed delete should leave the file in place")
	}
}

func TestReadAll_OrderedByPublishTime(t *testing.T) {
	fs := newFakeStore()
	fs.data["events/b-node-a-200.json"] = []byte(`{"id":"b-node-a-200","type":"b","node_id":"node-a","timestamp":200,"ttl":10}`)
	fs.data["events/a-node-a-100.json"] = []byte(`{"id":"a-node-a-100","type":"a","node_id":"node-a","timestamp":100,"ttl":10}`)

	bus := New(fs, "node-a", nil, testLogger())
	events, err := bus.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 2 || events[0].ID != "a-node-a-100" || events[1].ID != "b-node-a-200" {
		t.Fatalf("events out of order: %+v", events)
	}
}
