package storage

import (
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewID(PrefixIntelligence, now)

	if !strings.HasPrefix(id, "intel_1700000000123_") {
		t.Errorf("id = %q, want intel_1700000000123_ prefix", id)
	}
	if len(id) != len("intel_1700000000123_")+12 {
		t.Errorf("id %q has unexpected length %d", id, len(id))
	}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID(PrefixTransaction, now)
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
