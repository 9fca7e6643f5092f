package inbound

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryProcessedStore_EvictsOldestFractionInInsertionOrder(t *testing.T) {
	store := NewMemoryProcessedStore(10, 0.1)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := store.MarkProcessed(ctx, fmt.Sprintf("Ev%02d", i)); err != nil {
			t.Fatalf("mark processed: %v", err)
		}
	}
	if store.Len() != 10 {
		t.Fatalf("expected store at capacity, got %d", store.Len())
	}

	store.MarkProcessed(ctx, "Ev10")
	if store.Len() != 10 {
		t.Fatalf("expected one eviction on overflow, got len %d", store.Len())
	}
	if ok, _ := store.IsProcessed(ctx, "Ev00"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	for _, id := range []string{"Ev01", "Ev09", "Ev10"} {
		if ok, _ := store.IsProcessed(ctx, id); !ok {
			t.Fatalf("expected %s to be retained", id)
		}
	}
}

func TestMemoryProcessedStore_EvictsCeilingOfFraction(t *testing.T) {
	store := NewMemoryProcessedStore(25, 0.1)
	ctx := context.Background()
	for i := 0; i < 26; i++ {
		store.MarkProcessed(ctx, fmt.Sprintf("Ev%02d", i))
	}
	// 25 * 0.1 rounds up to 3 evictions.
	if store.Len() != 23 {
		t.Fatalf("expected 23 retained entries, got %d", store.Len())
	}
	if ok, _ := store.IsProcessed(ctx, "Ev02"); ok {
		t.Fatalf("expected the three oldest entries to be evicted")
	}
	if ok, _ := store.IsProcessed(ctx, "Ev03"); !ok {
		t.Fatalf("expected Ev03 to be retained")
	}
}

func TestMemoryProcessedStore_RemarkDoesNotReorder(t *testing.T) {
	store := NewMemoryProcessedStore(2, 0.5)
	ctx := context.Background()
	store.MarkProcessed(ctx, "a")
	store.MarkProcessed(ctx, "b")
	store.MarkProcessed(ctx, "a")
	store.MarkProcessed(ctx, "c")
	if ok, _ := store.IsProcessed(ctx, "a"); ok {
		t.Fatalf("expected first inserted id to be evicted regardless of re-marking")
	}
	if store.Len() != 2 {
		t.Fatalf("expected two entries, got %d", store.Len())
	}
}

func TestMemoryProcessedStore_RejectsEmptyID(t *testing.T) {
	store := NewMemoryProcessedStore(0, 0)
	if err := store.MarkProcessed(context.Background(), "  "); err == nil {
		t.Fatalf("expected empty id to be rejected")
	}
}
