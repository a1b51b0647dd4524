// Package store abstracts the shared state repository as an eventually
// consistent key-value store. Keys are slash-separated paths such as
// "nodes/node-abc123.json"; values are opaque byte payloads.
//
// The default backend replicates through a git repository; an S3 backend
// substitutes any bucket for the same contract. Consistency is last writer
// wins per key, bounded by how often Sync is called.
package store

import "context"

// Store is the replicated key-value contract the coordination layer runs on.
type Store interface {
	// GetAll returns every key under the given prefix with its payload,
	// as of the last successful Sync.
	GetAll(ctx context.Context, prefix string) (map[string][]byte, error)

	// Put writes a value and stages it for the next Flush.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes a key and stages the removal. Deleting an absent key
	// is a no-op, so concurrent deletes across nodes commute.
	Delete(ctx context.Context, key string) error

	// Sync brings the local view up to date with the replicated state.
	Sync(ctx context.Context) error

	// Flush propagates staged writes and removals. Backends with no
	// staging (every operation already remote) treat this as a no-op.
	// Flushing with nothing staged is not an error.
	Flush(ctx context.Context, message string) error
}
