// Package turn decides which single node may write to the state repository
// in the current time slice, with no communication: every node sorts the
// same replicated node list and maps wall-clock time onto it, so all nodes
// observing the same snapshot agree on the same writer.
//
// This is a best-effort mutual-exclusion hint, not consensus. When node
// lists diverge across observers (propagation lag), two nodes can both
// believe it is their turn; the resulting conflicting push is rejected by
// the remote and retried, which the design accepts.
package turn

import (
	"sort"
	"time"

	"github.com/fabriziosalmi/synapse-state/internal/model"
)

// Order returns the node IDs in the stable, globally-reproducible order
// the schedule is computed over: lexicographic.
func Order(nodes []model.NodeRecord) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	return ids
}

// Authorized returns the node holding the write turn at the given time.
// The slice index is floor(unix(now)/interval) mod len(ids). With an empty
// list there is no turn and ok is false.
func Authorized(ids []string, now time.Time, interval time.Duration) (string, bool) {
	if len(ids) == 0 {
		return "", false
	}
	secs := int64(interval / time.Second)
	if secs <= 0 {
		secs = 1
	}
	tick := now.Unix() / secs
	idx := int(tick % int64(len(ids)))
	return ids[idx], true
}

// IsMyTurn reports whether self holds the write turn. A node absent from
// the list (first record not yet replicated, or hidden by propagation lag)
// defers rather than writing out of turn.
func IsMyTurn(ids []string, self string, now time.Time, interval time.Duration) bool {
	found := false
	for _, id := range ids {
		if id == self {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	authorized, ok := Authorized(ids, now, interval)
	return ok && authorized == self
}
