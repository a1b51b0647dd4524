package model

import (
	"testing"
	"time"
)

func TestEventID(t *testing.T) {
	at := time.Unix(1700000000, 0)
	got := EventID("presence-announcement", "node-abc123", at)
	want := "presence-announcement-node-abc123-1700000000"
	if got != want {
		t.Errorf("EventID = %q, want %q", got, want)
	}
}

func TestEventExpired(t *testing.T) {
	ev := Event{Timestamp: 0, TTL: 10}
	for _, tc := range []struct {
		name string
		now  int64
		want bool
	}{
		{"WellBeforeExpiry", 5, false},
		{"JustBeforeExpiry", 9, false},
		{"AtBoundary", 10, false},
		{"JustAfterExpiry", 11, true},
		{"LongAfterExpiry", 1000, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := ev.Expired(time.Unix(tc.now, 0)); got != tc.want {
				t.Errorf("Expired(t=%d) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestEventExpired_ZeroTTL(t *testing.T) {
	ev := Event{Timestamp: 100, TTL: 0}
	if ev.Expired(time.Unix(100, 0)) {
		t.Error("event with ttl=0 should still be live at its publish second")
	}
	if !ev.Expired(time.Unix(101, 0)) {
		t.Error("event with ttl=0 should be expired one second after publish")
	}
}
