package memory

import (
	"testing"

	"github.com/JakeFAU/stockwatch/internal/state/statetest"
)

func TestStoreSemantics(t *testing.T) {
	t.Parallel()

	statetest.Run(t, New())
}

func TestStoreConcurrentWrites(t *testing.T) {
	t.Parallel()

	store := New()
	statetest.RunConcurrent(t, store, 32)
	if got := len(store.Snapshot()); got != 32 {
		t.Fatalf("expected 32 records, got %d", got)
	}
}
